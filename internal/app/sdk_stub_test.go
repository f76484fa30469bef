//go:build !dxfeed

package app

import (
	"context"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"

	"github.com/YaganovValera/tasty-streamer/common/logger"
	"github.com/YaganovValera/tasty-streamer/internal/config"
	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
)

func TestRunWithoutNativeSDK(t *testing.T) {
	rest := restServer(t)
	hold := make(chan struct{})
	defer close(hold)
	ws, _ := accountServer(t, func(c *websocket.Conn) { <-hold })

	cfg := baseConfig(rest, ws)
	cfg.Quotes = config.QuotesConfig{Enabled: true, Events: dxfeed.EventQuote, Symbols: []string{"SPX"}}

	err := Run(context.Background(), cfg, logger.Nop(), WithSink(make(chanSink, 1)))
	assert.ErrorIs(t, err, ErrNoNativeSDK)
}
