// Package events fans run progress out to SSE subscribers. Events are
// fire-and-forget: a slow subscriber drops messages rather than stalling
// the pipeline.
package events

import (
	"encoding/json"
	"time"
)

// Event is the wire shape pushed to subscribers. Version guards future
// payload changes; subscribers ignore versions they do not know.
type Event struct {
	Type    string          `json:"type"`
	Version int             `json:"v"`
	At      time.Time       `json:"at"`
	RunID   string          `json:"run_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MakeEvent serializes one event. Marshal failures are swallowed on
// purpose: events are advisory and must never fail a run.
func MakeEvent(runID, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:    typ,
		Version: v,
		At:      time.Now().UTC(),
		RunID:   runID,
		Data:    raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}
