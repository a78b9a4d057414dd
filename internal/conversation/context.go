package conversation

import (
	"strings"
	"time"
)

// Turn is one utterance exchanged during a call.
type Turn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// ElapsedSeconds is how far into the call the turn landed, recomputed
	// from StartedAt when the turn is appended.
	ElapsedSeconds int `json:"elapsed_seconds,omitempty"`

	Sentiment string `json:"sentiment,omitempty"`
	BargeIn   bool   `json:"barge_in,omitempty"`
}

const (
	TurnRoleAssistant = "assistant"
	TurnRoleUser      = "user"
)

// Context is the live conversation state for one call attempt. It is keyed
// by the call attempt ID and survives across webhook requests, which may
// land on different instances.
//
// NOTE: keep this JSON-serializable; the redis-backed store round-trips it
// on every turn.
type Context struct {
	CallAttemptID string    `json:"call_attempt_id"`
	LeadID        string    `json:"lead_id"`
	LeadName      string    `json:"lead_name"`
	LeadPhone     string    `json:"lead_phone"`
	LeadSource    string    `json:"lead_source"`
	LeadNotes     string    `json:"lead_notes"`
	BusinessName  string    `json:"business_name"`
	Turns         []Turn    `json:"turns"`
	MissedTurns   int       `json:"missed_turns"`
	StartedAt     time.Time `json:"started_at"`
}

// AddTurn appends an utterance to the conversation, stamping how long the
// call had been running when it landed.
func (c *Context) AddTurn(t Turn) {
	if !c.StartedAt.IsZero() && t.Timestamp.After(c.StartedAt) {
		t.ElapsedSeconds = int(t.Timestamp.Sub(c.StartedAt) / time.Second)
	}
	c.Turns = append(c.Turns, t)
}

// Transcript renders the conversation as "role: content" lines, oldest
// first. Empty when no turns were exchanged.
func (c *Context) Transcript() string {
	var b strings.Builder
	for i, t := range c.Turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Role)
		b.WriteString(": ")
		b.WriteString(t.Content)
	}
	return b.String()
}

// HasUserTurns reports whether the caller ever said anything.
func (c *Context) HasUserTurns() bool {
	for _, t := range c.Turns {
		if t.Role == TurnRoleUser {
			return true
		}
	}
	return false
}
