package telephony

import "errors"

// PromptDocument is the declarative voice-control response returned to the
// provider after every webhook. It is a closed variant: every document is
// some combination of Speak, Listen, and Hangup, and rendering fails on
// anything else, so new conversational paths cannot silently produce an
// empty response to a live phone call.
//
// A Listen always carries a no-input fallback URL; the provider redirects
// there when the caller stays silent through the listening window.

type PromptDocument struct {
	Speak  *SpeakInstruction
	Listen *ListenInstruction
	Hangup bool
}

type SpeakInstruction struct {
	Text string

	// Voice is the provider voice name; empty selects the default.
	Voice string
}

type ListenInstruction struct {
	// ActionURL receives the recognized speech.
	ActionURL string

	// NoInputURL receives control when the listening window times out.
	NoInputURL string

	// PartialURL optionally receives interim recognition results.
	PartialURL string

	TimeoutSeconds int

	// Hints are comma-separated phrases biasing recognition.
	Hints string
}

var (
	ErrEmptyDocument  = errors.New("telephony: document needs at least one of speak, listen, hangup")
	ErrListenNoAction = errors.New("telephony: listen requires an action url")
	ErrListenNoInput  = errors.New("telephony: listen requires a no-input fallback url")
)

// Validate enforces the document contract before rendering.
func (d PromptDocument) Validate() error {
	if d.Speak == nil && d.Listen == nil && !d.Hangup {
		return ErrEmptyDocument
	}
	if d.Listen != nil {
		if d.Listen.ActionURL == "" {
			return ErrListenNoAction
		}
		if d.Listen.NoInputURL == "" {
			return ErrListenNoInput
		}
	}
	return nil
}

// Say builds a speak-only document (terminal status pages, apologies).
func Say(text string) PromptDocument {
	return PromptDocument{Speak: &SpeakInstruction{Text: text}}
}

// SayAndListen builds the standard turn document: speak, then open a
// listening window.
func SayAndListen(text string, listen ListenInstruction) PromptDocument {
	return PromptDocument{Speak: &SpeakInstruction{Text: text}, Listen: &listen}
}

// SayAndHangup builds the terminating document.
func SayAndHangup(text string) PromptDocument {
	return PromptDocument{Speak: &SpeakInstruction{Text: text}, Hangup: true}
}
