package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values must come from env (or a .env file in local development).
// No business logic should depend on raw environment variables.
type Config struct {
	App       AppConfig
	DB        DBConfig
	Redis     RedisConfig
	Twilio    TwilioConfig
	OpenAI    OpenAIConfig
	Voice     VoiceConfig
	Scheduler SchedulerConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for managed-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type TwilioConfig struct {
	AccountSID string
	AuthToken  string
	FromNumber string

	// PublicBaseURL is the externally reachable base URL Twilio uses for
	// webhook callbacks (e.g. https://voice.example.com). No trailing slash.
	PublicBaseURL string

	// ValidateSignature toggles X-Twilio-Signature checks on webhook routes.
	// Required in production; optional locally where tunnels rewrite URLs.
	ValidateSignature bool
}

type OpenAIConfig struct {
	APIKey string

	ChatModel       string
	TranscribeModel string
	TTSModel        string
	TTSVoice        string

	// RequestTimeout bounds every generation call. Exceeding it is treated
	// exactly like a generation failure (scripted fallback utterance).
	RequestTimeout time.Duration
}

type VoiceConfig struct {
	// BusinessName is spoken in greetings and reminders.
	BusinessName string

	// SpeechTimeoutSeconds is the listening-window timeout passed to the
	// provider's speech gather.
	SpeechTimeoutSeconds int

	// EnforceAppointmentConflicts rejects double-booked appointment slots
	// when true. Kept configurable; overlapping bookings are allowed by
	// default.
	EnforceAppointmentConflicts bool
}

type SchedulerConfig struct {
	// ReminderCron is the sweep schedule. Defaults to hourly.
	ReminderCron string

	// ReminderWindow selects appointments starting within this window.
	ReminderWindow time.Duration

	// SweepConcurrency bounds parallel reminder sends per sweep.
	SweepConcurrency int
}

func Load() (Config, error) {
	// Best-effort: a missing .env is normal outside local development.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Twilio.FromNumber = strings.TrimSpace(os.Getenv("TWILIO_FROM_NUMBER"))
	c.Twilio.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	c.Twilio.ValidateSignature = boolEnv("TWILIO_VALIDATE_SIGNATURE")

	c.OpenAI.APIKey = os.Getenv("OPENAI_API_KEY")
	c.OpenAI.ChatModel = strings.TrimSpace(os.Getenv("OPENAI_CHAT_MODEL"))
	c.OpenAI.TranscribeModel = strings.TrimSpace(os.Getenv("OPENAI_TRANSCRIBE_MODEL"))
	c.OpenAI.TTSModel = strings.TrimSpace(os.Getenv("OPENAI_TTS_MODEL"))
	c.OpenAI.TTSVoice = strings.TrimSpace(os.Getenv("OPENAI_TTS_VOICE"))
	c.OpenAI.RequestTimeout = mustDuration("OPENAI_REQUEST_TIMEOUT")

	c.Voice.BusinessName = strings.TrimSpace(os.Getenv("VOICE_BUSINESS_NAME"))
	{
		n, _ := mustInt("VOICE_SPEECH_TIMEOUT_SECONDS")
		c.Voice.SpeechTimeoutSeconds = n
	}
	c.Voice.EnforceAppointmentConflicts = boolEnv("VOICE_ENFORCE_APPT_CONFLICTS")

	c.Scheduler.ReminderCron = strings.TrimSpace(os.Getenv("REMINDER_CRON"))
	c.Scheduler.ReminderWindow = mustDuration("REMINDER_WINDOW")
	{
		n, _ := mustInt("REMINDER_SWEEP_CONCURRENCY")
		c.Scheduler.SweepConcurrency = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Twilio.AccountSID == "" {
		errs = append(errs, errors.New("TWILIO_ACCOUNT_SID is required"))
	}
	if c.Twilio.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required"))
	}
	if c.Twilio.FromNumber == "" {
		errs = append(errs, errors.New("TWILIO_FROM_NUMBER is required"))
	}
	if c.Twilio.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	} else if !strings.HasPrefix(c.Twilio.PublicBaseURL, "http://") && !strings.HasPrefix(c.Twilio.PublicBaseURL, "https://") {
		errs = append(errs, fmt.Errorf("PUBLIC_BASE_URL must be an http(s) URL, got %q", c.Twilio.PublicBaseURL))
	}
	if c.IsProduction() && !c.Twilio.ValidateSignature {
		errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURE must be enabled in production"))
	}

	if c.OpenAI.APIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.OpenAI.ChatModel == "" {
		c.OpenAI.ChatModel = "gpt-4o-mini"
	}
	if c.OpenAI.TranscribeModel == "" {
		c.OpenAI.TranscribeModel = "whisper-1"
	}
	if c.OpenAI.TTSModel == "" {
		c.OpenAI.TTSModel = "tts-1"
	}
	if c.OpenAI.TTSVoice == "" {
		c.OpenAI.TTSVoice = "alloy"
	}
	if c.OpenAI.RequestTimeout <= 0 {
		c.OpenAI.RequestTimeout = 15 * time.Second
	}

	if c.Voice.BusinessName == "" {
		c.Voice.BusinessName = "our office"
	}
	if c.Voice.SpeechTimeoutSeconds <= 0 {
		c.Voice.SpeechTimeoutSeconds = 5
	}

	if c.Scheduler.ReminderCron == "" {
		c.Scheduler.ReminderCron = "0 * * * *"
	}
	if c.Scheduler.ReminderWindow <= 0 {
		c.Scheduler.ReminderWindow = 24 * time.Hour
	}
	if c.Scheduler.SweepConcurrency <= 0 {
		c.Scheduler.SweepConcurrency = 4
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func boolEnv(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
