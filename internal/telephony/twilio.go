package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Transport is the provider-agnostic outbound contract used by business
// logic (call initiation, reminder SMS).
//
// Rules:
// - No provider REST calls outside this package.
// - Keep request/response types provider-agnostic; both operations return
//   only the provider's identifier for the created resource.
type Transport interface {
	PlaceCall(ctx context.Context, req PlaceCallRequest) (providerCallID string, err error)
	SendSMS(ctx context.Context, to, body string) (providerMessageID string, err error)
}

// PlaceCallRequest describes an outbound call. All URLs are absolute.
type PlaceCallRequest struct {
	To string

	// TwiMLURL serves the opening voice document.
	TwiMLURL string

	// StatusCallbackURL receives call status events.
	StatusCallbackURL string

	// TimeoutSeconds bounds ringing before the provider gives up.
	TimeoutSeconds int
}

// TwilioClient talks to the Twilio REST API directly with form-encoded
// requests. It intentionally avoids the provider SDK; the surface we need
// is two endpoints.
type TwilioClient struct {
	accountSID string
	authToken  string
	fromNumber string

	baseURL string
	httpc   *http.Client
}

const twilioAPIBase = "https://api.twilio.com"

func NewTwilioClient(accountSID, authToken, fromNumber string) *TwilioClient {
	return &TwilioClient{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    twilioAPIBase,
		httpc:      &http.Client{Timeout: 15 * time.Second},
	}
}

// SetBaseURL points the client at a different endpoint. Test hook.
func (c *TwilioClient) SetBaseURL(u string) { c.baseURL = strings.TrimRight(u, "/") }

// PlaceCall creates an outbound call and returns the provider CallSid.
func (c *TwilioClient) PlaceCall(ctx context.Context, req PlaceCallRequest) (string, error) {
	if req.To == "" || req.TwiMLURL == "" {
		return "", &TransportError{Op: "place_call", Message: "to and twiml url are required"}
	}

	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", c.fromNumber)
	form.Set("Url", req.TwiMLURL)
	form.Set("Method", "POST")
	if req.StatusCallbackURL != "" {
		form.Set("StatusCallback", req.StatusCallbackURL)
		form.Set("StatusCallbackMethod", "POST")
		for _, ev := range []string{"initiated", "ringing", "answered", "completed"} {
			form.Add("StatusCallbackEvent", ev)
		}
	}
	if req.TimeoutSeconds > 0 {
		form.Set("Timeout", strconv.Itoa(req.TimeoutSeconds))
	}

	return c.post(ctx, "place_call", "/2010-04-01/Accounts/"+c.accountSID+"/Calls.json", form)
}

// SendSMS sends an outbound message and returns the provider MessageSid.
func (c *TwilioClient) SendSMS(ctx context.Context, to, body string) (string, error) {
	if to == "" || body == "" {
		return "", &TransportError{Op: "send_sms", Message: "to and body are required"}
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", c.fromNumber)
	form.Set("Body", body)

	return c.post(ctx, "send_sms", "/2010-04-01/Accounts/"+c.accountSID+"/Messages.json", form)
}

type twilioCreateResponse struct {
	Sid string `json:"sid"`

	// Error shape on non-2xx.
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (c *TwilioClient) post(ctx context.Context, op, path string, form url.Values) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	httpReq.SetBasicAuth(c.accountSID, c.authToken)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(httpReq)
	if err != nil {
		return "", &TransportError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &TransportError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	var body twilioCreateResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		return "", &TransportError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &TransportError{
			Op:           op,
			StatusCode:   resp.StatusCode,
			ProviderCode: body.Code,
			Message:      body.Message,
		}
	}
	if body.Sid == "" {
		return "", &TransportError{Op: op, StatusCode: resp.StatusCode, Message: "response missing sid"}
	}
	return body.Sid, nil
}
