package tastytrade

import (
	"context"
	"fmt"
	"net/url"
)

// EquityInfo looks up an equity instrument.
func (c *Client) EquityInfo(ctx context.Context, symbol Symbol) (*EquityInfo, error) {
	var info EquityInfo
	if err := c.get(ctx, "/instruments/equities/"+url.PathEscape(string(symbol)), &info); err != nil {
		return nil, fmt.Errorf("tastytrade: equity %s: %w", symbol, err)
	}
	return &info, nil
}

// OptionInfo looks up an equity option instrument.
func (c *Client) OptionInfo(ctx context.Context, symbol Symbol) (*OptionInfo, error) {
	var info OptionInfo
	if err := c.get(ctx, "/instruments/equity-options/"+url.PathEscape(string(symbol)), &info); err != nil {
		return nil, fmt.Errorf("tastytrade: equity option %s: %w", symbol, err)
	}
	return &info, nil
}

// StreamerSymbol translates a brokerage symbol into the market-data feed
// symbol. Only equities and equity options are supported; other types fail
// with ErrUnsupportedInstrument before any request is made.
func (c *Client) StreamerSymbol(ctx context.Context, typ InstrumentType, symbol Symbol) (string, error) {
	switch typ {
	case InstrumentEquity:
		info, err := c.EquityInfo(ctx, symbol)
		if err != nil {
			return "", err
		}
		return info.StreamerSymbol, nil
	case InstrumentEquityOption:
		info, err := c.OptionInfo(ctx, symbol)
		if err != nil {
			return "", err
		}
		return info.StreamerSymbol, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedInstrument, typ)
	}
}
