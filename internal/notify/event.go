// Package notify relays profile events between bizdna processes through
// files in a shared directory. One-shot commands and the MCP server write
// events; the HTTP server watches for them and forwards them to WebSocket
// clients.
package notify

import (
	"time"

	"github.com/scrypster/bizdna/pkg/types"
)

// Event types
const (
	EventProfileBuilt  = "profile.built"
	EventProfileFailed = "profile.failed"
)

// Event is the payload of one event file.
type Event struct {
	Type string                 `json:"type"`
	Time time.Time              `json:"time"`
	Data map[string]interface{} `json:"data,omitempty"`
}

// ProfileBuilt describes a successful build of p.
func ProfileBuilt(p *types.BehavioralProfile, at time.Time) Event {
	return Event{Type: EventProfileBuilt, Time: at.UTC(), Data: map[string]interface{}{
		"operator_id":       p.OperatorID,
		"scope":             p.Scope,
		"confidence_score":  p.ConfidenceScore,
		"data_completeness": p.DataCompleteness,
		"last_computed_at":  p.LastComputedAt,
	}}
}

// ProfileFailed describes a failed build.
func ProfileFailed(operatorID, scope string, err error, at time.Time) Event {
	return Event{Type: EventProfileFailed, Time: at.UTC(), Data: map[string]interface{}{
		"operator_id": operatorID,
		"scope":       scope,
		"error":       err.Error(),
	}}
}
