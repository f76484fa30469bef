package accountstream

import "encoding/json"

// Action is the verb of an outbound frame.
type Action string

const (
	ActionHeartbeat                 Action = "heartbeat"
	ActionConnect                   Action = "connect"
	ActionPublicWatchlistsSubscribe Action = "public-watchlists-subscribe"
	ActionQuoteAlertsSubscribe      Action = "quote-alerts-subscribe"
	ActionUserMessageSubscribe      Action = "user-message-subscribe"
)

// Valid reports whether a is one of the known actions.
func (a Action) Valid() bool {
	switch a {
	case ActionHeartbeat, ActionConnect, ActionPublicWatchlistsSubscribe,
		ActionQuoteAlertsSubscribe, ActionUserMessageSubscribe:
		return true
	}
	return false
}

// outbound is one queued action. The token is captured when it is enqueued,
// so a later SetToken does not rewrite frames already waiting for the writer.
type outbound struct {
	action Action
	value  json.RawMessage
	token  string
}

type frame struct {
	AuthToken string          `json:"auth-token"`
	Action    Action          `json:"action"`
	Value     json.RawMessage `json:"value,omitempty"`
}

func (o outbound) encode() ([]byte, error) {
	return json.Marshal(frame{AuthToken: o.token, Action: o.action, Value: o.value})
}
