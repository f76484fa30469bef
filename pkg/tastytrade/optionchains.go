package tastytrade

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"
)

// NestedOptionChain groups an underlying's options by expiration and strike.
type NestedOptionChain struct {
	UnderlyingSymbol  Symbol       `json:"underlying-symbol"`
	RootSymbol        Symbol       `json:"root-symbol"`
	OptionChainType   string       `json:"option-chain-type"`
	SharesPerContract int          `json:"shares-per-contract"`
	Expirations       []Expiration `json:"expirations"`
}

// Expiration is one expiration date of a nested chain.
type Expiration struct {
	ExpirationType   string   `json:"expiration-type"`
	ExpirationDate   string   `json:"expiration-date"`
	DaysToExpiration int      `json:"days-to-expiration"`
	SettlementType   string   `json:"settlement-type"`
	Strikes          []Strike `json:"strikes"`
}

// Strike holds the call and put symbols at one strike price.
type Strike struct {
	StrikePrice decimal.Decimal `json:"strike-price"`
	Call        Symbol          `json:"call"`
	Put         Symbol          `json:"put"`
}

// OptionSymbols lists call and put symbols of the first n expirations in
// chain order. n <= 0 means all of them.
func (c *NestedOptionChain) OptionSymbols(n int) []Symbol {
	exps := c.Expirations
	if n > 0 && n < len(exps) {
		exps = exps[:n]
	}
	var out []Symbol
	for _, e := range exps {
		for _, s := range e.Strikes {
			if s.Call != "" {
				out = append(out, s.Call)
			}
			if s.Put != "" {
				out = append(out, s.Put)
			}
		}
	}
	return out
}

// OptionChain is one option of the flat chain. Fields without a typed
// counterpart are kept in Extra.
type OptionChain struct {
	Symbol           Symbol          `json:"symbol"`
	UnderlyingSymbol Symbol          `json:"underlying-symbol"`
	StrikePrice      decimal.Decimal `json:"strike-price"`
	OptionType       string          `json:"option-type"`
	ExpirationDate   string          `json:"expiration-date"`
	StreamerSymbol   string          `json:"streamer-symbol"`

	Extra map[string]json.RawMessage `json:"-"`
}

func (o *OptionChain) UnmarshalJSON(data []byte) error {
	type plain OptionChain
	if err := json.Unmarshal(data, (*plain)(o)); err != nil {
		return err
	}
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	for _, k := range []string{"symbol", "underlying-symbol", "strike-price", "option-type", "expiration-date", "streamer-symbol"} {
		delete(all, k)
	}
	if len(all) > 0 {
		o.Extra = all
	}
	return nil
}

// NestedOptionChain fetches the option chain of underlying grouped by
// expiration.
func (c *Client) NestedOptionChain(ctx context.Context, underlying Symbol) (*NestedOptionChain, error) {
	var resp items[NestedOptionChain]
	if err := c.get(ctx, "/option-chains/"+url.PathEscape(string(underlying))+"/nested", &resp); err != nil {
		return nil, fmt.Errorf("tastytrade: nested option chain %s: %w", underlying, err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("tastytrade: nested option chain %s: %w", underlying, ErrEmptyResponse)
	}
	return &resp.Items[0], nil
}

// OptionChains lists every option of underlying.
func (c *Client) OptionChains(ctx context.Context, underlying Symbol) ([]OptionChain, error) {
	var resp items[OptionChain]
	if err := c.get(ctx, "/option-chains/"+url.PathEscape(string(underlying)), &resp); err != nil {
		return nil, fmt.Errorf("tastytrade: option chain %s: %w", underlying, err)
	}
	return resp.Items, nil
}
