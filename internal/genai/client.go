package genai

import (
	"context"
	"io"
	"time"
)

// Role of a conversation message.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is one exchanged utterance in a call conversation.
type Message struct {
	Role    Role
	Content string
}

// Sentiment classification of a caller utterance.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// LeadContext carries the lead details the model needs to personalize a
// conversation. It is deliberately a flat value type so prompts stay cheap
// to assemble.
type LeadContext struct {
	Name         string
	Phone        string
	Source       string
	BusinessName string
	Notes        string
}

// CallAnalysis is the structured post-call summary extracted from a full
// transcript once the call reaches a terminal state.
type CallAnalysis struct {
	AppointmentScheduled bool      `json:"appointment_scheduled"`
	ScheduledDateTime    string    `json:"scheduled_datetime"`
	CallbackRequested    bool      `json:"callback_requested"`
	Sentiment            Sentiment `json:"sentiment"`
	LeadQuality          string    `json:"lead_quality"`
	Intents              []string  `json:"intents"`
}

// Generator produces conversational replies and post-call analysis.
// Implementations must be safe for concurrent use.
type Generator interface {
	// Converse returns the assistant's next reply given the conversation
	// so far. msgs are ordered oldest first.
	Converse(ctx context.Context, lead LeadContext, msgs []Message) (string, error)

	// ClassifySentiment labels a single caller utterance. Implementations
	// should return SentimentNeutral when the label is unclear.
	ClassifySentiment(ctx context.Context, text string) (Sentiment, error)

	// AnalyzeCall extracts a structured summary from a finished
	// conversation.
	AnalyzeCall(ctx context.Context, lead LeadContext, msgs []Message) (CallAnalysis, error)

	// ComposeReminder writes a short SMS reminder for an upcoming
	// appointment.
	ComposeReminder(ctx context.Context, leadName, businessName string, apptTime time.Time) (string, error)

	// ComposeSMSReply writes a short free-form reply to an inbound SMS.
	ComposeSMSReply(ctx context.Context, lead LeadContext, body string) (string, error)
}

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error)
}

// Synthesizer converts text into spoken audio.
type Synthesizer interface {
	SynthesizeSpeech(ctx context.Context, text string) ([]byte, error)
}
