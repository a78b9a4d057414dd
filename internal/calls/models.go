package calls

import "time"

// CallAttempt represents one placed or received phone call tied to exactly
// one lead.
//
// Status invariant: pending -> in_progress -> (completed | failed | no_answer).
// There is no transition out of a terminal status; the store enforces this
// with conditional updates so racing status webhooks cannot double-finalize.
//
// Result is only meaningful once Status is terminal. Before that, treat it
// as undetermined regardless of what is persisted.
//
// NOTE: Provider-specific identifiers (the Twilio CallSid) live in
// ProviderCallID; nothing else in this model is provider-aware.
type CallAttempt struct {
	ID     string `json:"id" db:"id"`
	LeadID string `json:"lead_id" db:"lead_id"`

	// ProviderCallID is empty until the provider confirms placement.
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	StartTime time.Time  `json:"start_time" db:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" db:"end_time"`

	// DurationSeconds is provider-reported; zero until the call ends.
	DurationSeconds int `json:"duration" db:"duration"`

	RecordingURL string `json:"recording_url,omitempty" db:"recording_url"`

	// Transcript is a denormalized turn-by-turn summary written at
	// finalization.
	Transcript string `json:"transcript,omitempty" db:"transcript"`

	Status CallStatus `json:"status" db:"status"`
	Result CallResult `json:"result" db:"result"`

	Notes string `json:"notes,omitempty" db:"notes"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusPending    CallStatus = "pending"
	CallStatusInProgress CallStatus = "in_progress"
	CallStatusCompleted  CallStatus = "completed"
	CallStatusFailed     CallStatus = "failed"
	CallStatusNoAnswer   CallStatus = "no_answer"
)

// Terminal reports whether s permits no further transitions.
func (s CallStatus) Terminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer:
		return true
	default:
		return false
	}
}

func (s CallStatus) Valid() bool {
	switch s {
	case CallStatusPending, CallStatusInProgress, CallStatusCompleted,
		CallStatusFailed, CallStatusNoAnswer:
		return true
	default:
		return false
	}
}

type CallResult string

const (
	CallResultAppointmentSet CallResult = "appointment_set"
	CallResultCallBackLater  CallResult = "call_back_later"
	CallResultNotInterested  CallResult = "not_interested"
	CallResultWrongNumber    CallResult = "wrong_number"
	CallResultUndetermined   CallResult = "undetermined"
)

func (r CallResult) Valid() bool {
	switch r {
	case CallResultAppointmentSet, CallResultCallBackLater, CallResultNotInterested,
		CallResultWrongNumber, CallResultUndetermined:
		return true
	default:
		return false
	}
}
