package dxfeed

import (
	"errors"
	"unsafe"
)

// ErrInvalidSymbol is returned for symbols that cannot be passed to the SDK.
var ErrInvalidSymbol = errors.New("dxfeed: invalid symbol")

// WideString is a NUL-terminated UTF-32 string, the layout of wchar_t on the
// platforms the SDK ships for.
type WideString []int32

// NewWideString converts s. Empty strings and embedded NULs are rejected.
func NewWideString(s string) (WideString, error) {
	if s == "" {
		return nil, ErrInvalidSymbol
	}
	out := make(WideString, 0, len(s)+1)
	for _, r := range s {
		if r == 0 {
			return nil, ErrInvalidSymbol
		}
		out = append(out, int32(r))
	}
	return append(out, 0), nil
}

// String drops the terminator and converts back to UTF-8.
func (w WideString) String() string {
	rs := make([]rune, 0, len(w))
	for _, c := range w {
		if c == 0 {
			break
		}
		rs = append(rs, rune(c))
	}
	return string(rs)
}

// Ptr returns the address of the first code unit, or nil for an empty string.
func (w WideString) Ptr() unsafe.Pointer {
	if len(w) == 0 {
		return nil
	}
	return unsafe.Pointer(&w[0])
}

// maxWideLen bounds the scan of foreign buffers lacking a terminator.
const maxWideLen = 1 << 12

// GoStringFromWide reads a NUL-terminated wide string at p.
func GoStringFromWide(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	var rs []rune
	for i := 0; i < maxWideLen; i++ {
		c := *(*int32)(unsafe.Add(p, i*4))
		if c == 0 {
			break
		}
		rs = append(rs, rune(c))
	}
	return string(rs)
}

// ToWideStrings converts every symbol, failing on the first invalid one.
func ToWideStrings(symbols []string) ([]WideString, error) {
	out := make([]WideString, 0, len(symbols))
	for _, s := range symbols {
		w, err := NewWideString(s)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}
