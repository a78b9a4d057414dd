package conversation

import "strings"

// Links builds the absolute callback URLs handed to the telephony provider.
// Twilio fetches these over the public internet, so they are rooted at the
// service's public base URL rather than the listen address.
type Links struct {
	base string
}

func NewLinks(publicBaseURL string) Links {
	return Links{base: strings.TrimRight(publicBaseURL, "/")}
}

func (l Links) TwiML(callAttemptID string) string {
	return l.base + "/calls/twiml/" + callAttemptID
}

func (l Links) Respond(callAttemptID string) string {
	return l.base + "/calls/respond/" + callAttemptID
}

func (l Links) NoInput(callAttemptID string) string {
	return l.base + "/calls/no-input/" + callAttemptID
}

func (l Links) Partial(callAttemptID string) string {
	return l.base + "/calls/partial/" + callAttemptID
}

func (l Links) BargeIn(callAttemptID string) string {
	return l.base + "/calls/barge-in/" + callAttemptID
}

func (l Links) Status(callAttemptID string) string {
	return l.base + "/calls/status/" + callAttemptID
}
