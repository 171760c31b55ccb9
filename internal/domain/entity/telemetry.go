package entity

import "time"

type RequestStatus string

const (
	RequestSuccess RequestStatus = "success"
	RequestError   RequestStatus = "error"
)

// APIRequestRecord is written once per network call made by the context fetcher.
type APIRequestRecord struct {
	Timestamp         time.Time     `json:"timestamp"`
	ResponseTimestamp time.Time     `json:"responseTimestamp"`
	NetworkDuration   time.Duration `json:"networkDuration"`
	TotalDuration     time.Duration `json:"totalDuration"`
	Status            RequestStatus `json:"status"`
	AttemptID         int64         `json:"attemptId"`
	TraceID           string        `json:"traceId,omitempty"`
	Backend           string        `json:"backend,omitempty"`
	ErrorKind         string        `json:"errorKind,omitempty"`
	HTTPStatus        int           `json:"httpStatus,omitempty"`
}

type CooldownState struct {
	LastErrorAt *time.Time
	Cooldown    time.Duration
}

func (c CooldownState) Active(now time.Time) bool {
	if c.LastErrorAt == nil {
		return false
	}
	return now.Sub(*c.LastErrorAt) < c.Cooldown
}
