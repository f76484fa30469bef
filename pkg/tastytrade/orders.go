package tastytrade

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ErrInvalidOrder is returned before sending an order without legs.
var ErrInvalidOrder = errors.New("tastytrade: invalid order")

// OrderAction is the side of an order leg.
type OrderAction string

const (
	BuyToOpen   OrderAction = "Buy to Open"
	SellToOpen  OrderAction = "Sell to Open"
	BuyToClose  OrderAction = "Buy to Close"
	SellToClose OrderAction = "Sell to Close"
	Buy         OrderAction = "Buy"
	Sell        OrderAction = "Sell"
)

// OrderType values accepted by the order endpoints.
type OrderType string

const (
	OrderTypeLimit           OrderType = "Limit"
	OrderTypeMarket          OrderType = "Market"
	OrderTypeMarketableLimit OrderType = "Marketable Limit"
	OrderTypeStop            OrderType = "Stop"
	OrderTypeStopLimit       OrderType = "Stop Limit"
	OrderTypeNotionalMarket  OrderType = "Notional Market"
)

// TimeInForce values accepted by the order endpoints.
type TimeInForce string

const (
	Day    TimeInForce = "Day"
	GTC    TimeInForce = "GTC"
	GTD    TimeInForce = "GTD"
	Ext    TimeInForce = "Ext"
	GTCExt TimeInForce = "GTC Ext"
	IOC    TimeInForce = "IOC"
)

// Order is the body of a dry-run or placement.
type Order struct {
	TimeInForce TimeInForce     `json:"time-in-force"`
	OrderType   OrderType       `json:"order-type"`
	Price       decimal.Decimal `json:"price"`
	PriceEffect PriceEffect     `json:"price-effect"`
	Legs        []OrderLeg      `json:"legs"`
}

// OrderLeg is one instrument of an order.
type OrderLeg struct {
	InstrumentType InstrumentType  `json:"instrument-type"`
	Symbol         Symbol          `json:"symbol"`
	Quantity       decimal.Decimal `json:"quantity"`
	Action         OrderAction     `json:"action"`
}

func (o *Order) validate() error {
	if len(o.Legs) == 0 {
		return fmt.Errorf("%w: no legs", ErrInvalidOrder)
	}
	for i, l := range o.Legs {
		if l.Symbol == "" || l.Action == "" || !l.Quantity.IsPositive() {
			return fmt.Errorf("%w: leg %d needs symbol, action and a positive quantity", ErrInvalidOrder, i)
		}
	}
	return nil
}

// BuyingPowerEffect describes how an order changes buying power.
type BuyingPowerEffect struct {
	ChangeInMarginRequirement       decimal.Decimal `json:"change-in-margin-requirement"`
	ChangeInMarginRequirementEffect PriceEffect     `json:"change-in-margin-requirement-effect"`
	ChangeInBuyingPower             decimal.Decimal `json:"change-in-buying-power"`
	ChangeInBuyingPowerEffect       PriceEffect     `json:"change-in-buying-power-effect"`
	CurrentBuyingPower              decimal.Decimal `json:"current-buying-power"`
	CurrentBuyingPowerEffect        PriceEffect     `json:"current-buying-power-effect"`
	Impact                          decimal.Decimal `json:"impact"`
	Effect                          PriceEffect     `json:"effect"`
}

// FeeCalculation is the fee estimate of an order.
type FeeCalculation struct {
	TotalFees       decimal.Decimal `json:"total-fees"`
	TotalFeesEffect PriceEffect     `json:"total-fees-effect"`
}

// OrderWarning is a non-fatal remark returned with an order.
type OrderWarning struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// DryRunRecord is the order as it would be placed.
type DryRunRecord struct {
	AccountNumber    AccountNumber   `json:"account-number"`
	TimeInForce      TimeInForce     `json:"time-in-force"`
	OrderType        OrderType       `json:"order-type"`
	Size             decimal.Decimal `json:"size"`
	UnderlyingSymbol Symbol          `json:"underlying-symbol"`
	Price            decimal.Decimal `json:"price"`
	PriceEffect      PriceEffect     `json:"price-effect"`
	Status           OrderStatus     `json:"status"`
	Cancellable      bool            `json:"cancellable"`
	Editable         bool            `json:"editable"`
	Edited           bool            `json:"edited"`
	Legs             []OrderLeg      `json:"legs"`
}

// DryRunResult is returned by POST /accounts/{n}/orders/dry-run.
type DryRunResult struct {
	Order             DryRunRecord      `json:"order"`
	Warnings          []OrderWarning    `json:"warnings"`
	BuyingPowerEffect BuyingPowerEffect `json:"buying-power-effect"`
	FeeCalculation    FeeCalculation    `json:"fee-calculation"`
}

// OrderPlacedResult is returned by POST /accounts/{n}/orders.
type OrderPlacedResult struct {
	Order             LiveOrderRecord   `json:"order"`
	Warnings          []OrderWarning    `json:"warnings"`
	BuyingPowerEffect BuyingPowerEffect `json:"buying-power-effect"`
	FeeCalculation    FeeCalculation    `json:"fee-calculation"`
}

// DryRun validates an order server-side without placing it.
func (c *Client) DryRun(ctx context.Context, number AccountNumber, order Order) (*DryRunResult, error) {
	if err := order.validate(); err != nil {
		return nil, err
	}
	var res DryRunResult
	if err := c.do(ctx, http.MethodPost, accountPath(number, "orders/dry-run"), order, &res); err != nil {
		return nil, fmt.Errorf("tastytrade: dry run %s: %w", number, err)
	}
	return &res, nil
}

// PlaceOrder submits an order. It is never retried.
func (c *Client) PlaceOrder(ctx context.Context, number AccountNumber, order Order) (*OrderPlacedResult, error) {
	if err := order.validate(); err != nil {
		return nil, err
	}
	var res OrderPlacedResult
	if err := c.do(ctx, http.MethodPost, accountPath(number, "orders"), order, &res); err != nil {
		return nil, fmt.Errorf("tastytrade: place order %s: %w", number, err)
	}
	c.log.WithContext(ctx).Info("order placed",
		zap.String("account", string(number)),
		zap.Int64("order_id", res.Order.ID),
		zap.String("status", string(res.Order.Status)))
	return &res, nil
}

// CancelOrder requests cancellation and returns the updated order.
func (c *Client) CancelOrder(ctx context.Context, number AccountNumber, id int64) (*LiveOrderRecord, error) {
	var rec LiveOrderRecord
	path := accountPath(number, "orders/"+strconv.FormatInt(id, 10))
	if err := c.do(ctx, http.MethodDelete, path, nil, &rec); err != nil {
		return nil, fmt.Errorf("tastytrade: cancel order %d: %w", id, err)
	}
	return &rec, nil
}
