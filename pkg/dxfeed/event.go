package dxfeed

import (
	"encoding/json"
	"fmt"
)

// Event is one decoded market event.
type Event struct {
	Symbol string
	Data   EventData
}

// Type returns the single kind bit of the payload.
func (e *Event) Type() EventType {
	if e == nil || e.Data == nil {
		return 0
	}
	return e.Data.EventType()
}

func (e *Event) String() string {
	return fmt.Sprintf("%s %s %+v", e.Type(), e.Symbol, e.Data)
}

// MarshalJSON renders {"symbol","type","data"}.
func (e *Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Symbol string    `json:"symbol"`
		Type   string    `json:"type"`
		Data   EventData `json:"data"`
	}{e.Symbol, e.Type().String(), e.Data})
}

// EventData is implemented by every payload model.
type EventData interface {
	EventType() EventType
}

// Quote is the best bid/offer.
type Quote struct {
	Time            int64   `json:"time"`
	Sequence        int32   `json:"sequence"`
	TimeNanos       int32   `json:"time_nanos"`
	BidTime         int64   `json:"bid_time"`
	BidExchangeCode rune    `json:"bid_exchange_code"`
	BidPrice        float64 `json:"bid_price"`
	BidSize         float64 `json:"bid_size"`
	AskTime         int64   `json:"ask_time"`
	AskExchangeCode rune    `json:"ask_exchange_code"`
	AskPrice        float64 `json:"ask_price"`
	AskSize         float64 `json:"ask_size"`
	Scope           int32   `json:"scope"`
}

func (Quote) EventType() EventType { return EventQuote }

// Trade is the last trade, regular or extended hours.
type Trade struct {
	Time         int64   `json:"time"`
	Sequence     int32   `json:"sequence"`
	TimeNanos    int32   `json:"time_nanos"`
	ExchangeCode rune    `json:"exchange_code"`
	Price        float64 `json:"price"`
	Size         float64 `json:"size"`
	Tick         int32   `json:"tick"`
	Change       float64 `json:"change"`
	DayID        int32   `json:"day_id"`
	DayVolume    float64 `json:"day_volume"`
	DayTurnover  float64 `json:"day_turnover"`
	RawFlags     int32   `json:"raw_flags"`
	Direction    int32   `json:"direction"`
	IsETH        bool    `json:"is_eth"`
	Scope        int32   `json:"scope"`
	ETH          bool    `json:"-"` // delivered as TradeETH
}

func (t Trade) EventType() EventType {
	if t.ETH {
		return EventTradeETH
	}
	return EventTrade
}

// Summary carries daily OHLC and open interest.
type Summary struct {
	DayID                 int32   `json:"day_id"`
	DayOpenPrice          float64 `json:"day_open_price"`
	DayHighPrice          float64 `json:"day_high_price"`
	DayLowPrice           float64 `json:"day_low_price"`
	DayClosePrice         float64 `json:"day_close_price"`
	PrevDayID             int32   `json:"prev_day_id"`
	PrevDayClosePrice     float64 `json:"prev_day_close_price"`
	PrevDayVolume         float64 `json:"prev_day_volume"`
	OpenInterest          float64 `json:"open_interest"`
	RawFlags              int32   `json:"raw_flags"`
	ExchangeCode          rune    `json:"exchange_code"`
	DayClosePriceType     int32   `json:"day_close_price_type"`
	PrevDayClosePriceType int32   `json:"prev_day_close_price_type"`
	Scope                 int32   `json:"scope"`
}

func (Summary) EventType() EventType { return EventSummary }

// Profile is instrument reference data.
type Profile struct {
	Beta            float64 `json:"beta"`
	EPS             float64 `json:"eps"`
	DivFreq         float64 `json:"div_freq"`
	ExdDivAmount    float64 `json:"exd_div_amount"`
	ExdDivDate      int32   `json:"exd_div_date"`
	High52WeekPrice float64 `json:"high_52_week_price"`
	Low52WeekPrice  float64 `json:"low_52_week_price"`
	Shares          float64 `json:"shares"`
	FreeFloat       float64 `json:"free_float"`
	HighLimitPrice  float64 `json:"high_limit_price"`
	LowLimitPrice   float64 `json:"low_limit_price"`
	HaltStartTime   int64   `json:"halt_start_time"`
	HaltEndTime     int64   `json:"halt_end_time"`
	RawFlags        int32   `json:"raw_flags"`
	Description     string  `json:"description"`
	StatusReason    string  `json:"status_reason"`
	TradingStatus   int32   `json:"trading_status"`
	SSR             int32   `json:"ssr"`
}

func (Profile) EventType() EventType { return EventProfile }

// Greeks are option sensitivities.
type Greeks struct {
	EventFlags int32   `json:"event_flags"`
	Index      int64   `json:"index"`
	Time       int64   `json:"time"`
	Price      float64 `json:"price"`
	Volatility float64 `json:"volatility"`
	Delta      float64 `json:"delta"`
	Gamma      float64 `json:"gamma"`
	Theta      float64 `json:"theta"`
	Rho        float64 `json:"rho"`
	Vega       float64 `json:"vega"`
}

func (Greeks) EventType() EventType { return EventGreeks }

// TheoPrice is the model price of an option.
type TheoPrice struct {
	Time            int64   `json:"time"`
	Price           float64 `json:"price"`
	UnderlyingPrice float64 `json:"underlying_price"`
	Delta           float64 `json:"delta"`
	Gamma           float64 `json:"gamma"`
	Dividend        float64 `json:"dividend"`
	Interest        float64 `json:"interest"`
}

func (TheoPrice) EventType() EventType { return EventTheoPrice }

// Underlying carries implied volatility data of an option underlying.
type Underlying struct {
	Volatility      float64 `json:"volatility"`
	FrontVolatility float64 `json:"front_volatility"`
	BackVolatility  float64 `json:"back_volatility"`
	CallVolume      float64 `json:"call_volume"`
	PutVolume       float64 `json:"put_volume"`
	OptionVolume    float64 `json:"option_volume"`
	PutCallRatio    float64 `json:"put_call_ratio"`
}

func (Underlying) EventType() EventType { return EventUnderlying }
