package configloader

import (
	"encoding/json"

	"go.uber.org/zap"

	"github.com/YaganovValera/tasty-streamer/common/logger"
)

// LogConfig logs cfg as JSON at info level. Fields tagged `json:"-"` are omitted,
// so secrets should carry that tag.
func LogConfig(log *logger.Logger, cfg interface{}) {
	b, err := json.Marshal(cfg)
	if err != nil {
		log.Warn("config: marshal failed", zap.Error(err))
		return
	}
	log.Info("config: loaded", zap.ByteString("config", b))
}
