package tastytrade

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountNumber identifies a brokerage account.
type AccountNumber string

// Symbol is a brokerage-format symbol, e.g. "AAPL  241220C00150000".
type Symbol string

// InstrumentType selects the instrument lookup endpoint.
type InstrumentType string

const (
	InstrumentEquity         InstrumentType = "Equity"
	InstrumentEquityOption   InstrumentType = "Equity Option"
	InstrumentEquityOffering InstrumentType = "Equity Offering"
	InstrumentFuture         InstrumentType = "Future"
	InstrumentFutureOption   InstrumentType = "Future Option"
	InstrumentCryptocurrency InstrumentType = "Cryptocurrency"
)

// Streamable reports whether StreamerSymbol can translate this type.
func (t InstrumentType) Streamable() bool {
	return t == InstrumentEquity || t == InstrumentEquityOption
}

// PriceEffect tells whether an amount is paid or received.
type PriceEffect string

const (
	Debit  PriceEffect = "Debit"
	Credit PriceEffect = "Credit"
	None   PriceEffect = "None"
)

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	OrderReceived         OrderStatus = "Received"
	OrderRouted           OrderStatus = "Routed"
	OrderInFlight         OrderStatus = "In Flight"
	OrderLive             OrderStatus = "Live"
	OrderCancelRequested  OrderStatus = "Cancel Requested"
	OrderReplaceRequested OrderStatus = "Replace Requested"
	OrderContingent       OrderStatus = "Contingent"
	OrderFilled           OrderStatus = "Filled"
	OrderCancelled        OrderStatus = "Cancelled"
	OrderExpired          OrderStatus = "Expired"
	OrderRejected         OrderStatus = "Rejected"
	OrderRemoved          OrderStatus = "Removed"
	OrderPartiallyRemoved OrderStatus = "Partially Removed"
)

// Terminal reports whether no further transitions are expected.
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderFilled, OrderCancelled, OrderExpired, OrderRejected, OrderRemoved, OrderPartiallyRemoved:
		return true
	}
	return false
}

// LoginResponse is returned by POST /sessions.
type LoginResponse struct {
	User struct {
		Email      string `json:"email"`
		Username   string `json:"username"`
		ExternalID string `json:"external-id"`
	} `json:"user"`
	SessionToken  string `json:"session-token"`
	RememberToken string `json:"remember-token,omitempty"`
}

// QuoteStreamerTokens bootstraps the market-data feed.
type QuoteStreamerTokens struct {
	Token        string `json:"token"`
	StreamerURL  string `json:"streamer-url"`
	WebsocketURL string `json:"websocket-url"`
	Level        string `json:"level"`
}

// AccountDetails is the account part of /customers/me/accounts.
type AccountDetails struct {
	AccountNumber     AccountNumber `json:"account-number"`
	ExternalID        string        `json:"external-id,omitempty"`
	OpenedAt          string        `json:"opened-at"`
	Nickname          string        `json:"nickname"`
	AccountTypeName   string        `json:"account-type-name"`
	DayTraderStatus   bool          `json:"day-trader-status"`
	IsFirmError       bool          `json:"is-firm-error"`
	IsFirmProprietary bool          `json:"is-firm-proprietary"`
	IsTestDrive       bool          `json:"is-test-drive"`
	MarginOrCash      string        `json:"margin-or-cash"`
	IsForeign         bool          `json:"is-foreign"`
	FundingDate       string        `json:"funding-date,omitempty"`
}

// Account is one entry of the customer's account list.
type Account struct {
	Account        AccountDetails `json:"account"`
	AuthorityLevel string         `json:"authority-level"`
}

// Number returns the account number.
func (a Account) Number() AccountNumber { return a.Account.AccountNumber }

// Balance is an account balance snapshot; also pushed as AccountBalance.
type Balance struct {
	AccountNumber        AccountNumber   `json:"account-number"`
	CashBalance          decimal.Decimal `json:"cash-balance"`
	LongEquityValue      decimal.Decimal `json:"long-equity-value"`
	ShortEquityValue     decimal.Decimal `json:"short-equity-value"`
	LongDerivativeValue  decimal.Decimal `json:"long-derivative-value"`
	ShortDerivativeValue decimal.Decimal `json:"short-derivative-value"`
	NetLiquidatingValue  decimal.Decimal `json:"net-liquidating-value"`
	UpdatedAt            *time.Time      `json:"updated-at,omitempty"`
}

// Position is an open position; also pushed as CurrentPosition.
type Position struct {
	AccountNumber                 AccountNumber   `json:"account-number"`
	Symbol                        Symbol          `json:"symbol"`
	InstrumentType                InstrumentType  `json:"instrument-type"`
	UnderlyingSymbol              Symbol          `json:"underlying-symbol"`
	Quantity                      decimal.Decimal `json:"quantity"`
	QuantityDirection             string          `json:"quantity-direction"`
	ClosePrice                    decimal.Decimal `json:"close-price"`
	AverageOpenPrice              decimal.Decimal `json:"average-open-price"`
	AverageYearlyMarketClosePrice decimal.Decimal `json:"average-yearly-market-close-price"`
	AverageDailyMarketClosePrice  decimal.Decimal `json:"average-daily-market-close-price"`
	Multiplier                    int             `json:"multiplier"`
	CostEffect                    PriceEffect     `json:"cost-effect"`
	IsSuppressed                  bool            `json:"is-suppressed"`
	IsFrozen                      bool            `json:"is-frozen"`
	RestrictedQuantity            decimal.Decimal `json:"restricted-quantity"`
	RealizedDayGain               decimal.Decimal `json:"realized-day-gain"`
	RealizedDayGainEffect         string          `json:"realized-day-gain-effect"`
	RealizedToday                 decimal.Decimal `json:"realized-today"`
	RealizedTodayEffect           string          `json:"realized-today-effect"`
	CreatedAt                     string          `json:"created-at"`
	UpdatedAt                     string          `json:"updated-at"`
}

// LiveOrderLeg is one leg of an order.
type LiveOrderLeg struct {
	InstrumentType    InstrumentType  `json:"instrument-type"`
	Symbol            Symbol          `json:"symbol"`
	Quantity          decimal.Decimal `json:"quantity"`
	RemainingQuantity decimal.Decimal `json:"remaining-quantity"`
	Action            OrderAction     `json:"action"`
}

// LiveOrderRecord is an order; also pushed as Order.
type LiveOrderRecord struct {
	ID               int64           `json:"id"`
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
	Legs             []LiveOrderLeg  `json:"legs,omitempty"`
}

// EquityInfo is returned by /instruments/equities/{symbol}.
type EquityInfo struct {
	Symbol         Symbol `json:"symbol"`
	StreamerSymbol string `json:"streamer-symbol"`
	Description    string `json:"description,omitempty"`
}

// OptionInfo is returned by /instruments/equity-options/{symbol}.
type OptionInfo struct {
	Symbol           Symbol `json:"symbol"`
	StreamerSymbol   string `json:"streamer-symbol"`
	UnderlyingSymbol Symbol `json:"underlying-symbol,omitempty"`
}

type items[T any] struct {
	Items []T `json:"items"`
}
