//go:build dxfeed

package cdxfeed

/*
#include <DXFeed.h>
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/YaganovValera/tasty-streamer/pkg/dxfeed"
)

// DecodeEvent copies the native record into Go memory. data is only valid
// during the listener call.
func (s *SDK) DecodeEvent(eventType dxfeed.EventType, symbol, data unsafe.Pointer) (*dxfeed.Event, error) {
	if data == nil {
		return nil, dxfeed.ErrNilData
	}
	ev := &dxfeed.Event{Symbol: dxfeed.GoStringFromWide(symbol)}

	switch eventType {
	case dxfeed.EventQuote:
		q := (*C.dxf_quote_t)(data)
		ev.Data = dxfeed.Quote{
			Time:            int64(q.time),
			Sequence:        int32(q.sequence),
			TimeNanos:       int32(q.time_nanos),
			BidTime:         int64(q.bid_time),
			BidExchangeCode: rune(q.bid_exchange_code),
			BidPrice:        float64(q.bid_price),
			BidSize:         float64(q.bid_size),
			AskTime:         int64(q.ask_time),
			AskExchangeCode: rune(q.ask_exchange_code),
			AskPrice:        float64(q.ask_price),
			AskSize:         float64(q.ask_size),
			Scope:           int32(q.scope),
		}
	case dxfeed.EventTrade, dxfeed.EventTradeETH:
		t := (*C.dxf_trade_t)(data)
		ev.Data = dxfeed.Trade{
			Time:         int64(t.time),
			Sequence:     int32(t.sequence),
			TimeNanos:    int32(t.time_nanos),
			ExchangeCode: rune(t.exchange_code),
			Price:        float64(t.price),
			Size:         float64(t.size),
			Tick:         int32(t.tick),
			Change:       float64(t.change),
			DayID:        int32(t.day_id),
			DayVolume:    float64(t.day_volume),
			DayTurnover:  float64(t.day_turnover),
			RawFlags:     int32(t.raw_flags),
			Direction:    int32(t.direction),
			IsETH:        t.is_eth != 0,
			Scope:        int32(t.scope),
			ETH:          eventType == dxfeed.EventTradeETH,
		}
	case dxfeed.EventSummary:
		m := (*C.dxf_summary_t)(data)
		ev.Data = dxfeed.Summary{
			DayID:                 int32(m.day_id),
			DayOpenPrice:          float64(m.day_open_price),
			DayHighPrice:          float64(m.day_high_price),
			DayLowPrice:           float64(m.day_low_price),
			DayClosePrice:         float64(m.day_close_price),
			PrevDayID:             int32(m.prev_day_id),
			PrevDayClosePrice:     float64(m.prev_day_close_price),
			PrevDayVolume:         float64(m.prev_day_volume),
			OpenInterest:          float64(m.open_interest),
			RawFlags:              int32(m.raw_flags),
			ExchangeCode:          rune(m.exchange_code),
			DayClosePriceType:     int32(m.day_close_price_type),
			PrevDayClosePriceType: int32(m.prev_day_close_price_type),
			Scope:                 int32(m.scope),
		}
	case dxfeed.EventProfile:
		p := (*C.dxf_profile_t)(data)
		ev.Data = dxfeed.Profile{
			Beta:            float64(p.beta),
			EPS:             float64(p.eps),
			DivFreq:         float64(p.div_freq),
			ExdDivAmount:    float64(p.exd_div_amount),
			ExdDivDate:      int32(p.exd_div_date),
			High52WeekPrice: float64(p.high_52_week_price),
			Low52WeekPrice:  float64(p.low_52_week_price),
			Shares:          float64(p.shares),
			FreeFloat:       float64(p.free_float),
			HighLimitPrice:  float64(p.high_limit_price),
			LowLimitPrice:   float64(p.low_limit_price),
			HaltStartTime:   int64(p.halt_start_time),
			HaltEndTime:     int64(p.halt_end_time),
			RawFlags:        int32(p.raw_flags),
			Description:     dxfeed.GoStringFromWide(unsafe.Pointer(p.description)),
			StatusReason:    dxfeed.GoStringFromWide(unsafe.Pointer(p.status_reason)),
			TradingStatus:   int32(p.trading_status),
			SSR:             int32(p.ssr),
		}
	case dxfeed.EventGreeks:
		g := (*C.dxf_greeks_t)(data)
		ev.Data = dxfeed.Greeks{
			EventFlags: int32(g.event_flags),
			Index:      int64(g.index),
			Time:       int64(g.time),
			Price:      float64(g.price),
			Volatility: float64(g.volatility),
			Delta:      float64(g.delta),
			Gamma:      float64(g.gamma),
			Theta:      float64(g.theta),
			Rho:        float64(g.rho),
			Vega:       float64(g.vega),
		}
	case dxfeed.EventTheoPrice:
		p := (*C.dxf_theo_price_t)(data)
		ev.Data = dxfeed.TheoPrice{
			Time:            int64(p.time),
			Price:           float64(p.price),
			UnderlyingPrice: float64(p.underlying_price),
			Delta:           float64(p.delta),
			Gamma:           float64(p.gamma),
			Dividend:        float64(p.dividend),
			Interest:        float64(p.interest),
		}
	case dxfeed.EventUnderlying:
		u := (*C.dxf_underlying_t)(data)
		ev.Data = dxfeed.Underlying{
			Volatility:      float64(u.volatility),
			FrontVolatility: float64(u.front_volatility),
			BackVolatility:  float64(u.back_volatility),
			CallVolume:      float64(u.call_volume),
			PutVolume:       float64(u.put_volume),
			OptionVolume:    float64(u.option_volume),
			PutCallRatio:    float64(u.put_call_ratio),
		}
	default:
		return nil, fmt.Errorf("%w: %s", dxfeed.ErrUnsupportedEvent, eventType)
	}
	return ev, nil
}
