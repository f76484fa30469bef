//go:build dxfeed

package app

import (
	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed/cdxfeed"
)

func nativeSDK() (dxfeed.SDK, error) { return cdxfeed.New(), nil }
