//go:build !dxfeed

package app

import (
	"errors"

	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
)

// ErrNoNativeSDK is returned when quotes are enabled in a binary built
// without the dxfeed tag.
var ErrNoNativeSDK = errors.New("app: built without the dxfeed tag, quotes unavailable")

func nativeSDK() (dxfeed.SDK, error) { return nil, ErrNoNativeSDK }
