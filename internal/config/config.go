package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

var ErrInvalidThresholds = errors.New("invalid thresholds")

// Thresholds are the similarity cutoffs between status tiers.
type Thresholds struct {
	Potential float64
	Duplicate float64
	Exact     float64
}

// Validate enforces 0 <= Potential <= Duplicate <= Exact <= 1. Each bound is
// written as a positive comparison so NaN fails it.
func (t Thresholds) Validate() error {
	if !(0 <= t.Potential && t.Potential <= t.Duplicate && t.Duplicate <= t.Exact && t.Exact <= 1) {
		return fmt.Errorf("%w: need 0 <= potential(%g) <= duplicate(%g) <= exact(%g) <= 1",
			ErrInvalidThresholds, t.Potential, t.Duplicate, t.Exact)
	}
	return nil
}

type Config struct {
	DBPath     string
	RawMailDir string
	OutputDir  string
	LogLevel   string

	Thresholds   Thresholds
	ViewPageSize int

	DetectorAPIBaseURL   string
	DetectorAPIToken     string
	DetectorRateLimitRPS int
	DetectorTimeoutMs    int
	DetectorMaxAttempts  int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

// Load reads .env and the environment. Thresholds are validated here, once;
// a bad triple is returned as an error and callers refuse to start.
func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		ViewPageSize: getEnvInt("VIEW_PAGE_SIZE", 50),

		DetectorAPIBaseURL:   getEnv("DETECTOR_API_BASE_URL", "http://localhost:8000/api/institutions"),
		DetectorAPIToken:     getEnv("DETECTOR_API_TOKEN", ""),
		DetectorRateLimitRPS: getEnvInt("DETECTOR_RATE_LIMIT_RPS", 2),
		DetectorTimeoutMs:    getEnvInt("DETECTOR_TIMEOUT_MS", 300000),
		DetectorMaxAttempts:  getEnvInt("DETECTOR_MAX_ATTEMPTS", 3),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "imap"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 60),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 10),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	if cfg.Thresholds, err = loadThresholds(); err != nil {
		return Config{}, err
	}
	if cfg.ViewPageSize <= 0 {
		cfg.ViewPageSize = 50
	}

	return cfg, nil
}

// loadThresholds refuses a threshold variable that is set but not a number,
// rather than falling back to its default.
func loadThresholds() (Thresholds, error) {
	var (
		th  Thresholds
		err error
	)
	if th.Potential, err = getEnvFloat("POTENTIAL_DUPLICATE_THRESHOLD", 0.75); err != nil {
		return Thresholds{}, err
	}
	if th.Duplicate, err = getEnvFloat("DUPLICATE_THRESHOLD", 0.85); err != nil {
		return Thresholds{}, err
	}
	if th.Exact, err = getEnvFloat("EXACT_MATCH_THRESHOLD", 1.0); err != nil {
		return Thresholds{}, err
	}
	return th, th.Validate()
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidThresholds, key, value)
	}
	return parsed, nil
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
