// Package cdxfeed binds dxfeed.SDK to the native dxFeed C API.
//
// The binding is compiled only with the "dxfeed" build tag and needs the
// DXFeed headers and shared library on the cgo search paths:
//
//	CGO_CFLAGS=-I/opt/dxfeed/include CGO_LDFLAGS=-L/opt/dxfeed/lib go build -tags dxfeed ./...
package cdxfeed
