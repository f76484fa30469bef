package dxfeed

import "strings"

// EventType is a bit set of native event kinds. A listener always receives
// exactly one bit.
type EventType int32

const (
	EventTrade EventType = 1 << iota
	EventQuote
	EventSummary
	EventProfile
	EventOrder
	EventTimeAndSale
	EventCandle
	EventTradeETH
	EventSpreadOrder
	EventGreeks
	EventTheoPrice
	EventUnderlying
	EventSeries
	EventConfiguration
)

var eventTypeNames = []struct {
	t    EventType
	name string
}{
	{EventTrade, "Trade"},
	{EventQuote, "Quote"},
	{EventSummary, "Summary"},
	{EventProfile, "Profile"},
	{EventOrder, "Order"},
	{EventTimeAndSale, "TimeAndSale"},
	{EventCandle, "Candle"},
	{EventTradeETH, "TradeETH"},
	{EventSpreadOrder, "SpreadOrder"},
	{EventGreeks, "Greeks"},
	{EventTheoPrice, "TheoPrice"},
	{EventUnderlying, "Underlying"},
	{EventSeries, "Series"},
	{EventConfiguration, "Configuration"},
}

// String renders the set as "Quote|Greeks".
func (t EventType) String() string {
	if t == 0 {
		return "None"
	}
	var parts []string
	for _, n := range eventTypeNames {
		if t&n.t != 0 {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, "|")
}

// ParseEventTypes parses names such as "Quote", "greeks" into a bit set.
func ParseEventTypes(names []string) (EventType, error) {
	var out EventType
next:
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		for _, n := range eventTypeNames {
			if strings.EqualFold(n.name, name) {
				out |= n.t
				continue next
			}
		}
		return 0, &UnknownEventTypeError{Name: name}
	}
	return out, nil
}

// Has reports whether every bit of other is set in t.
func (t EventType) Has(other EventType) bool { return t&other == other }
