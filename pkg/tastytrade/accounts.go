package tastytrade

import (
	"context"
	"fmt"
	"net/url"
)

// Accounts lists the accounts of the logged-in customer.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	var resp items[Account]
	if err := c.get(ctx, "/customers/me/accounts", &resp); err != nil {
		return nil, fmt.Errorf("tastytrade: accounts: %w", err)
	}
	return resp.Items, nil
}

// Account finds one account by number; ok is false when it is not listed.
func (c *Client) Account(ctx context.Context, number AccountNumber) (Account, bool, error) {
	accounts, err := c.Accounts(ctx)
	if err != nil {
		return Account{}, false, err
	}
	for _, a := range accounts {
		if a.Number() == number {
			return a, true, nil
		}
	}
	return Account{}, false, nil
}

// Balance returns the current balance of an account.
func (c *Client) Balance(ctx context.Context, number AccountNumber) (*Balance, error) {
	var b Balance
	if err := c.get(ctx, accountPath(number, "balances"), &b); err != nil {
		return nil, fmt.Errorf("tastytrade: balance %s: %w", number, err)
	}
	return &b, nil
}

// Positions lists open positions of an account.
func (c *Client) Positions(ctx context.Context, number AccountNumber) ([]Position, error) {
	var resp items[Position]
	if err := c.get(ctx, accountPath(number, "positions"), &resp); err != nil {
		return nil, fmt.Errorf("tastytrade: positions %s: %w", number, err)
	}
	return resp.Items, nil
}

// LiveOrders lists orders created or updated today.
func (c *Client) LiveOrders(ctx context.Context, number AccountNumber) ([]LiveOrderRecord, error) {
	var resp items[LiveOrderRecord]
	if err := c.get(ctx, accountPath(number, "orders/live"), &resp); err != nil {
		return nil, fmt.Errorf("tastytrade: live orders %s: %w", number, err)
	}
	return resp.Items, nil
}

func accountPath(number AccountNumber, suffix string) string {
	return "/accounts/" + url.PathEscape(string(number)) + "/" + suffix
}

// QuoteStreamerTokens fetches the token and host of the market-data feed.
func (c *Client) QuoteStreamerTokens(ctx context.Context) (QuoteStreamerTokens, error) {
	var t QuoteStreamerTokens
	if err := c.get(ctx, "/quote-streamer-tokens", &t); err != nil {
		return QuoteStreamerTokens{}, fmt.Errorf("tastytrade: quote streamer tokens: %w", err)
	}
	return t, nil
}
