package telephony

import (
	"bytes"
	"encoding/xml"
	"strconv"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName               xml.Name `xml:"Gather"`
	Input                 string   `xml:"input,attr"`
	Action                string   `xml:"action,attr"`
	Method                string   `xml:"method,attr"`
	Timeout               string   `xml:"timeout,attr,omitempty"`
	SpeechTimeout         string   `xml:"speechTimeout,attr,omitempty"`
	Hints                 string   `xml:"hints,attr,omitempty"`
	PartialResultCallback string   `xml:"partialResultCallback,attr,omitempty"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// RenderTwiML maps a PromptDocument to a voice TwiML response.
//
// Layout for a speak+listen document:
//
//	<Say>...</Say>
//	<Gather input="speech" action=.../>
//	<Redirect>no-input url</Redirect>
//
// The trailing Redirect is the no-input fallback: Twilio only reaches it
// when the Gather times out without speech.
func RenderTwiML(doc PromptDocument) (string, error) {
	if err := doc.Validate(); err != nil {
		return "", err
	}

	var r twimlResponse
	if doc.Speak != nil {
		r.Verbs = append(r.Verbs, twimlSay{Voice: doc.Speak.Voice, Text: doc.Speak.Text})
	}
	if doc.Listen != nil {
		g := twimlGather{
			Input:                 "speech",
			Action:                doc.Listen.ActionURL,
			Method:                "POST",
			Hints:                 doc.Listen.Hints,
			PartialResultCallback: doc.Listen.PartialURL,
			SpeechTimeout:         "auto",
		}
		if doc.Listen.TimeoutSeconds > 0 {
			g.Timeout = strconv.Itoa(doc.Listen.TimeoutSeconds)
		}
		r.Verbs = append(r.Verbs, g)
		r.Verbs = append(r.Verbs, twimlRedirect{Method: "POST", URL: doc.Listen.NoInputURL})
	}
	if doc.Hangup {
		r.Verbs = append(r.Verbs, twimlHangup{})
	}

	return encodeXML(r)
}

type twimlMessagingResponse struct {
	XMLName xml.Name `xml:"Response"`
	Message string   `xml:"Message,omitempty"`
}

// RenderMessagingResponse wraps an SMS reply body in the provider's
// messaging-response document. An empty body renders an empty response,
// which acknowledges the webhook without sending anything.
func RenderMessagingResponse(body string) (string, error) {
	return encodeXML(twimlMessagingResponse{Message: body})
}

// RenderEmptyResponse acknowledges a webhook with no instruction (partial
// speech results, status callbacks).
func RenderEmptyResponse() string {
	out, _ := encodeXML(twimlResponse{})
	return out
}

func encodeXML(v any) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
