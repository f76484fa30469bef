// common/service.go
package common

import (
	"github.com/YaganovValera/tasty-streamer/common/backoff"
	producer "github.com/YaganovValera/tasty-streamer/common/kafka/producer"
)

// ServiceNameKey is the metric label carrying the service name.
const ServiceNameKey = "service"

// InitServiceName sets one service label for back-off and the Kafka producer.
// Call it from main() before any metrics are emitted.
func InitServiceName(name string) {
	backoff.SetServiceLabel(name)
	producer.SetServiceLabel(name)
}
