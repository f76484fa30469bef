// common/kafka/interface.go
//
// Package kafka defines the publishing contract used by the relay without
// pulling Sarama into callers.
package kafka

import "context"

// Producer publishes records to Kafka.
type Producer interface {
	// Publish delivers one record honouring RequiredAcks; transient failures
	// are retried with back-off.
	Publish(ctx context.Context, topic string, key, value []byte) error
	// Ping refreshes cluster metadata.
	Ping(ctx context.Context) error
	Close() error
}
