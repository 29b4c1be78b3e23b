package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/padel-booking-bot/internal/domain"
	"github.com/wolfman30/padel-booking-bot/internal/timeutil"
)

const (
	maxCourts     = 20
	minLockMargin = 5 * time.Second
)

// defaultAliases maps the sponsor names customers use for each court.
var defaultAliases = map[string]string{
	"monex":    "cancha_1",
	"gocsa":    "cancha_2",
	"teds":     "cancha_3",
	"woodward": "cancha_4",
}

// Config holds application configuration
type Config struct {
	Port      string
	Env       string
	LogLevel  string
	LogFormat string

	EstablishmentName string
	OpeningTime       string
	ClosingTime       string
	DefaultDuration   int
	SlotStepMinutes   int
	ClosingPolicy     string
	Timezone          string
	Courts            []domain.Court
	CourtAliases      map[string]string

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioWhatsAppNumber    string
	TwilioWebhookURL        string
	TwilioValidateSignature bool

	LLMProvider    string
	GeminiAPIKey   string
	GeminiModel    string
	BedrockModelID string
	LLMTimeout     time.Duration

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	CalendarBackend    string
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleRefreshToken string
	CalendarTimeout    time.Duration

	RedisAddr     string
	RedisPassword string
	RedisLockTTL  time.Duration

	UseMemoryQueue       bool
	ConversationQueueURL string
	WorkerCount          int

	ConversationTTL  time.Duration
	SweepInterval    time.Duration
	HistoryLimit     int
	RemindersEnabled bool
	ReminderInterval time.Duration
	RateLimitRPS     float64
	RateLimitBurst   int
}

// Load reads configuration from the environment, after applying an optional
// .env file from the working directory.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:      getEnv("PORT", "3000"),
		Env:       getEnv("ENV", getEnv("NODE_ENV", "development")),
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		EstablishmentName: getEnv("ESTABLECIMIENTO_NOMBRE", "Centro de Padel"),
		OpeningTime:       getEnv("ESTABLECIMIENTO_HORARIO_APERTURA", "08:00"),
		ClosingTime:       getEnv("ESTABLECIMIENTO_HORARIO_CIERRE", "22:00"),
		DefaultDuration:   getEnvAsInt("DURACION_DEFAULT_MINUTOS", 60),
		SlotStepMinutes:   getEnvAsInt("SLOT_STEP_MINUTES", 30),
		ClosingPolicy:     strings.ToLower(getEnv("CLOSING_POLICY", string(domain.ClosingPolicyStart))),
		Timezone:          getEnv("TIMEZONE", "America/Mexico_City"),
		Courts:            loadCourts(),
		CourtAliases:      loadAliases(),

		TwilioAccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioWhatsAppNumber:    getEnv("TWILIO_WHATSAPP_NUMBER", ""),
		TwilioWebhookURL:        getEnv("TWILIO_WEBHOOK_URL", ""),
		TwilioValidateSignature: getEnvAsBool("TWILIO_VALIDATE_SIGNATURE", false),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		LLMTimeout:     getEnvAsDuration("LLM_TIMEOUT", 20*time.Second),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CalendarBackend:    strings.ToLower(getEnv("CALENDAR_BACKEND", "google")),
		GoogleClientID:     getEnv("GOOGLE_CALENDAR_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CALENDAR_CLIENT_SECRET", ""),
		GoogleRedirectURI:  getEnv("GOOGLE_CALENDAR_REDIRECT_URI", ""),
		GoogleRefreshToken: getEnv("GOOGLE_CALENDAR_REFRESH_TOKEN", ""),
		CalendarTimeout:    getEnvAsDuration("CALENDAR_TIMEOUT", 10*time.Second),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisLockTTL:  getEnvAsDuration("REDIS_LOCK_TTL", 30*time.Second),

		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", true),
		ConversationQueueURL: getEnv("CONVERSATION_QUEUE_URL", ""),
		WorkerCount:          getEnvAsInt("WORKER_COUNT", 4),

		ConversationTTL:  getEnvAsDuration("CONVERSATION_TTL", 30*time.Minute),
		SweepInterval:    getEnvAsDuration("CONVERSATION_SWEEP_INTERVAL", 5*time.Minute),
		HistoryLimit:     getEnvAsInt("CONVERSATION_HISTORY", 10),
		RemindersEnabled: getEnvAsBool("REMINDERS_ENABLED", true),
		ReminderInterval: getEnvAsDuration("REMINDER_INTERVAL", 5*time.Minute),
		RateLimitRPS:     getEnvAsFloat("RATE_LIMIT_RPS", 5),
		RateLimitBurst:   getEnvAsInt("RATE_LIMIT_BURST", 20),
	}
}

// Validate reports every missing credential or malformed setting at once.
// The returned error is a *domain.ConfigurationError.
func (c *Config) Validate() error {
	var problems []string
	require := func(value, name string) {
		if strings.TrimSpace(value) == "" {
			problems = append(problems, name+" is required")
		}
	}

	require(c.TwilioAccountSID, "TWILIO_ACCOUNT_SID")
	require(c.TwilioAuthToken, "TWILIO_AUTH_TOKEN")
	require(c.TwilioWhatsAppNumber, "TWILIO_WHATSAPP_NUMBER")

	switch c.LLMProvider {
	case "gemini":
		require(c.GeminiAPIKey, "GEMINI_API_KEY")
	case "bedrock":
		require(c.BedrockModelID, "BEDROCK_MODEL_ID")
	default:
		problems = append(problems, fmt.Sprintf("LLM_PROVIDER %q must be gemini or bedrock", c.LLMProvider))
	}

	switch c.CalendarBackend {
	case "google":
		require(c.GoogleClientID, "GOOGLE_CALENDAR_CLIENT_ID")
		require(c.GoogleClientSecret, "GOOGLE_CALENDAR_CLIENT_SECRET")
		require(c.GoogleRefreshToken, "GOOGLE_CALENDAR_REFRESH_TOKEN")
		for _, court := range c.Courts {
			if court.CalendarID == "" {
				problems = append(problems, fmt.Sprintf("calendar id for %s is required", court.ID))
			}
		}
	case "memory":
	default:
		problems = append(problems, fmt.Sprintf("CALENDAR_BACKEND %q must be google or memory", c.CalendarBackend))
	}

	if !c.UseMemoryQueue {
		require(c.ConversationQueueURL, "CONVERSATION_QUEUE_URL")
	}
	if c.TwilioValidateSignature {
		require(c.TwilioWebhookURL, "TWILIO_WEBHOOK_URL")
	}

	if _, err := time.LoadLocation(c.Timezone); err != nil || strings.TrimSpace(c.Timezone) == "" {
		problems = append(problems, fmt.Sprintf("TIMEZONE %q is not a valid IANA zone", c.Timezone))
	}
	open, openErr := timeutil.ParseClock(c.OpeningTime)
	if openErr != nil {
		problems = append(problems, "ESTABLECIMIENTO_HORARIO_APERTURA: "+openErr.Error())
	}
	closing, closeErr := timeutil.ParseClock(c.ClosingTime)
	if closeErr != nil {
		problems = append(problems, "ESTABLECIMIENTO_HORARIO_CIERRE: "+closeErr.Error())
	}
	if openErr == nil && closeErr == nil && timeutil.MinutesOfDay(open) >= timeutil.MinutesOfDay(closing) {
		problems = append(problems, "opening time must be before closing time")
	}
	if c.DefaultDuration < 30 || c.DefaultDuration > 240 {
		problems = append(problems, "DURACION_DEFAULT_MINUTOS must be between 30 and 240")
	}
	if c.SlotStepMinutes <= 0 {
		problems = append(problems, "SLOT_STEP_MINUTES must be positive")
	}
	switch domain.ClosingPolicy(c.ClosingPolicy) {
	case domain.ClosingPolicyStart, domain.ClosingPolicyEnd:
	default:
		problems = append(problems, fmt.Sprintf("CLOSING_POLICY %q must be start or end", c.ClosingPolicy))
	}
	if len(c.Courts) == 0 {
		problems = append(problems, "at least one court must be configured")
	}
	if strings.TrimSpace(c.RedisAddr) != "" && c.RedisLockTTL < 2*c.CalendarTimeout+minLockMargin {
		problems = append(problems, fmt.Sprintf("REDIS_LOCK_TTL %s must be at least twice CALENDAR_TIMEOUT plus %s", c.RedisLockTTL, minLockMargin))
	}

	if len(problems) > 0 {
		return &domain.ConfigurationError{Problems: problems}
	}
	return nil
}

// ReservationTimeout bounds a booking transaction once its court lock is
// held: an availability re-check and an insert.
func (c *Config) ReservationTimeout() time.Duration {
	if c.CalendarTimeout <= 0 {
		return 0
	}
	return 2 * c.CalendarTimeout
}

// Location returns the establishment time zone.
func (c *Config) Location() *time.Location {
	return timeutil.LoadLocation(c.Timezone)
}

// BusinessHours assembles the schedule. Call Validate first; unparsable
// clocks yield an error here as well.
func (c *Config) BusinessHours() (domain.BusinessHours, error) {
	open, err := timeutil.ParseClock(c.OpeningTime)
	if err != nil {
		return domain.BusinessHours{}, err
	}
	closing, err := timeutil.ParseClock(c.ClosingTime)
	if err != nil {
		return domain.BusinessHours{}, err
	}
	return domain.BusinessHours{
		Open:            open,
		Close:           closing,
		DefaultDuration: time.Duration(c.DefaultDuration) * time.Minute,
		SlotStep:        time.Duration(c.SlotStepMinutes) * time.Minute,
		Closing:         domain.ClosingPolicy(c.ClosingPolicy),
		Location:        c.Location(),
	}, nil
}

func loadCourts() []domain.Court {
	var courts []domain.Court
	for i := 1; i <= maxCourts; i++ {
		calendarID := getEnv(fmt.Sprintf("CANCHA_%d_CALENDAR_ID", i), "")
		if calendarID == "" {
			break
		}
		courts = append(courts, domain.Court{
			ID:         fmt.Sprintf("cancha_%d", i),
			Name:       getEnv(fmt.Sprintf("CANCHA_%d_NOMBRE", i), fmt.Sprintf("Cancha %d", i)),
			CalendarID: calendarID,
		})
	}
	if len(courts) == 0 {
		courts = append(courts, domain.Court{
			ID:   "cancha_1",
			Name: getEnv("CANCHA_1_NOMBRE", "Cancha 1"),
		})
	}
	return courts
}

// loadAliases starts from the sponsor table and adds CANCHA_N_ALIAS entries,
// a comma-separated list per court.
func loadAliases() map[string]string {
	aliases := make(map[string]string, len(defaultAliases))
	for alias, id := range defaultAliases {
		aliases[alias] = id
	}
	for i := 1; i <= maxCourts; i++ {
		raw := getEnv(fmt.Sprintf("CANCHA_%d_ALIAS", i), "")
		for _, alias := range strings.Split(raw, ",") {
			alias = strings.ToLower(strings.TrimSpace(alias))
			if alias != "" {
				aliases[alias] = fmt.Sprintf("cancha_%d", i)
			}
		}
	}
	return aliases
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
