package telephony

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
)

// Webhook form parsing. Twilio sends application/x-www-form-urlencoded by
// default. Each parser captures only the fields the service consumes and
// validates the essentials up front, so handlers dispatch on typed payloads
// instead of trusting loose form maps.
//
// Business logic is not made here.

var ErrInvalidPayload = errors.New("telephony: invalid webhook payload")

// SpeechResult is one recognized utterance from a Gather.
type SpeechResult struct {
	CallSid      string
	SpeechResult string
	Confidence   float64
	CallStatus   string
}

func ParseSpeechResult(r *http.Request) (SpeechResult, error) {
	if err := r.ParseForm(); err != nil {
		return SpeechResult{}, ErrInvalidPayload
	}
	out := SpeechResult{
		CallSid:      r.PostFormValue("CallSid"),
		SpeechResult: strings.TrimSpace(r.PostFormValue("SpeechResult")),
		CallStatus:   r.PostFormValue("CallStatus"),
	}
	if v := r.PostFormValue("Confidence"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			out.Confidence = f
		}
	}
	if out.SpeechResult == "" {
		return SpeechResult{}, ErrInvalidPayload
	}
	return out, nil
}

// PartialSpeechResult is an interim recognition callback. Best-effort only;
// no committed side effect may depend on it.
type PartialSpeechResult struct {
	CallSid        string
	UnstableSpeech string
	StableSpeech   string
	SequenceNumber int
}

func ParsePartialSpeechResult(r *http.Request) (PartialSpeechResult, error) {
	if err := r.ParseForm(); err != nil {
		return PartialSpeechResult{}, ErrInvalidPayload
	}
	out := PartialSpeechResult{
		CallSid:        r.PostFormValue("CallSid"),
		UnstableSpeech: r.PostFormValue("UnstableSpeechResult"),
		StableSpeech:   r.PostFormValue("StableSpeechResult"),
	}
	if v := r.PostFormValue("SequenceNumber"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			out.SequenceNumber = n
		}
	}
	return out, nil
}

// StatusEvent is a call status change callback.
type StatusEvent struct {
	CallSid         string
	CallStatus      string
	DurationSeconds int
}

func ParseStatusEvent(r *http.Request) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, ErrInvalidPayload
	}
	out := StatusEvent{
		CallSid:    r.PostFormValue("CallSid"),
		CallStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
	}
	if v := r.PostFormValue("CallDuration"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			out.DurationSeconds = n
		}
	}
	if out.CallStatus == "" {
		return StatusEvent{}, ErrInvalidPayload
	}
	return out, nil
}

// InboundSMS is an incoming message webhook.
type InboundSMS struct {
	MessageSid string
	From       string
	To         string
	Body       string
}

func ParseInboundSMS(r *http.Request) (InboundSMS, error) {
	if err := r.ParseForm(); err != nil {
		return InboundSMS{}, ErrInvalidPayload
	}
	out := InboundSMS{
		MessageSid: r.PostFormValue("MessageSid"),
		From:       strings.TrimSpace(r.PostFormValue("From")),
		To:         strings.TrimSpace(r.PostFormValue("To")),
		Body:       strings.TrimSpace(r.PostFormValue("Body")),
	}
	if out.From == "" {
		return InboundSMS{}, ErrInvalidPayload
	}
	return out, nil
}
