package actions

import "time"

type Status string

const (
	StatusSuccess   Status = "success"
	StatusFailure   Status = "failure"
	StatusCancelled Status = "cancelled"
)

// TimestampLayout renders completion times in UTC with millisecond precision,
// the same shape browsers produce for Date.toISOString.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Outcome is the terminal result of one dispatched request. Every request
// produces exactly one.
type Outcome struct {
	ConnectionID string `json:"botId"`
	ActionType   Type   `json:"actionType"`
	Status       Status `json:"status"`
	Message      string `json:"message"`
	DurationMs   int64  `json:"durationMs"`
	CompletedAt  string `json:"completedAt"`
}

func (o Outcome) OK() bool { return o.Status == StatusSuccess }

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}
