package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// chatAPI is the slice of the OpenAI client this package actually calls.
// Tests substitute a fake; production wiring passes *openai.Client.
type chatAPI interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
	CreateSpeech(ctx context.Context, req openai.CreateSpeechRequest) (openai.RawResponse, error)
}

// OpenAIConfig selects the models used for each task.
type OpenAIConfig struct {
	ChatModel       string
	TranscribeModel string
	TTSModel        string
	TTSVoice        string
	RequestTimeout  time.Duration
}

// OpenAIGenerator implements Generator, Transcriber and Synthesizer on top
// of the OpenAI API.
type OpenAIGenerator struct {
	api   chatAPI
	cfg   OpenAIConfig
	clock func() time.Time
}

// NewOpenAIGenerator builds a generator from an API key and model config.
func NewOpenAIGenerator(apiKey string, cfg OpenAIConfig) *OpenAIGenerator {
	return newOpenAIGenerator(openai.NewClient(apiKey), cfg)
}

func newOpenAIGenerator(api chatAPI, cfg OpenAIConfig) *OpenAIGenerator {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	return &OpenAIGenerator{api: api, cfg: cfg, clock: time.Now}
}

// SetClock overrides the time source for tests.
func (g *OpenAIGenerator) SetClock(clock func() time.Time) { g.clock = clock }

const conversePromptTemplate = `You are a friendly scheduling assistant calling on behalf of %s.
You are speaking with %s, who reached out via %s.
Your goal is to book an appointment. Keep replies under two sentences and
suitable for text-to-speech: no markdown, no lists, no emoji.
If the caller proposes a day and time, confirm it back to them explicitly.
If the caller is not interested, thank them politely and end the conversation.
Lead notes: %s`

func (g *OpenAIGenerator) Converse(ctx context.Context, lead LeadContext, msgs []Message) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	system := fmt.Sprintf(conversePromptTemplate,
		orDefault(lead.BusinessName, "our office"),
		orDefault(lead.Name, "the caller"),
		orDefault(lead.Source, "our website"),
		orDefault(lead.Notes, "none"))

	req := openai.ChatCompletionRequest{
		Model:    g.cfg.ChatModel,
		Messages: append([]openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleSystem, Content: system}}, toChatMessages(msgs)...),
	}
	resp, err := g.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", generationErr("converse", err)
	}
	reply := firstChoice(resp)
	if reply == "" {
		return "", generationErr("converse", fmt.Errorf("empty completion"))
	}
	return reply, nil
}

func (g *OpenAIGenerator) ClassifySentiment(ctx context.Context, text string) (Sentiment, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: g.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "Classify the sentiment of the utterance. Answer with exactly one word: positive, neutral or negative."},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		MaxTokens: 4,
	}
	resp, err := g.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return SentimentNeutral, generationErr("classify_sentiment", err)
	}
	switch Sentiment(strings.ToLower(strings.TrimSpace(firstChoice(resp)))) {
	case SentimentPositive:
		return SentimentPositive, nil
	case SentimentNegative:
		return SentimentNegative, nil
	default:
		return SentimentNeutral, nil
	}
}

const analyzePrompt = `You review transcripts of outbound appointment-setting calls.
Return a JSON object with these fields:
  appointment_scheduled: boolean, true only if a specific day and time was agreed
  scheduled_datetime: the agreed time as RFC3339, or "" if none
  callback_requested: boolean
  sentiment: "positive", "neutral" or "negative"
  lead_quality: "hot", "warm" or "cold"
  intents: array of short strings describing what the caller wanted
Respond with the JSON object only.`

func (g *OpenAIGenerator) AnalyzeCall(ctx context.Context, lead LeadContext, msgs []Message) (CallAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	var transcript strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}
	fmt.Fprintf(&transcript, "\nThe current date is %s.", g.clock().UTC().Format("2006-01-02"))

	req := openai.ChatCompletionRequest{
		Model: g.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: analyzePrompt},
			{Role: openai.ChatMessageRoleUser, Content: transcript.String()},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	resp, err := g.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return CallAnalysis{}, generationErr("analyze_call", err)
	}
	var out CallAnalysis
	if err := json.Unmarshal([]byte(firstChoice(resp)), &out); err != nil {
		return CallAnalysis{}, generationErr("analyze_call", fmt.Errorf("decode analysis: %w", err))
	}
	switch out.Sentiment {
	case SentimentPositive, SentimentNegative:
	default:
		out.Sentiment = SentimentNeutral
	}
	return out, nil
}

func (g *OpenAIGenerator) ComposeReminder(ctx context.Context, leadName, businessName string, apptTime time.Time) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	prompt := fmt.Sprintf(
		"Write a friendly SMS reminding %s of their appointment with %s on %s. One or two sentences, under 160 characters, no emoji.",
		orDefault(leadName, "the customer"),
		orDefault(businessName, "our office"),
		apptTime.Format("Monday, January 2 at 3:04 PM"))

	req := openai.ChatCompletionRequest{
		Model:    g.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: prompt}},
	}
	resp, err := g.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", generationErr("compose_reminder", err)
	}
	body := firstChoice(resp)
	if body == "" {
		return "", generationErr("compose_reminder", fmt.Errorf("empty completion"))
	}
	return body, nil
}

func (g *OpenAIGenerator) ComposeSMSReply(ctx context.Context, lead LeadContext, body string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	system := fmt.Sprintf(
		"You answer SMS messages on behalf of %s. Reply to %s in one or two short sentences. If you cannot help, suggest calling the office.",
		orDefault(lead.BusinessName, "our office"),
		orDefault(lead.Name, "the customer"))

	req := openai.ChatCompletionRequest{
		Model: g.cfg.ChatModel,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: body},
		},
	}
	resp, err := g.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", generationErr("compose_sms_reply", err)
	}
	reply := firstChoice(resp)
	if reply == "" {
		return "", generationErr("compose_sms_reply", fmt.Errorf("empty completion"))
	}
	return reply, nil
}

func (g *OpenAIGenerator) Transcribe(ctx context.Context, filename string, audio io.Reader) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	resp, err := g.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    g.cfg.TranscribeModel,
		FilePath: filename,
		Reader:   audio,
	})
	if err != nil {
		return "", generationErr("transcribe", err)
	}
	return resp.Text, nil
}

func (g *OpenAIGenerator) SynthesizeSpeech(ctx context.Context, text string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.RequestTimeout)
	defer cancel()

	resp, err := g.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model: openai.SpeechModel(g.cfg.TTSModel),
		Voice: openai.SpeechVoice(g.cfg.TTSVoice),
		Input: text,
	})
	if err != nil {
		return nil, generationErr("synthesize_speech", err)
	}
	defer resp.Close()
	audio, err := io.ReadAll(resp)
	if err != nil {
		return nil, generationErr("synthesize_speech", err)
	}
	return audio, nil
}

func toChatMessages(msgs []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		out = append(out, openai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return out
}

func firstChoice(resp openai.ChatCompletionResponse) string {
	if len(resp.Choices) == 0 {
		return ""
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
