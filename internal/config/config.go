package config

import (
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // TIMEZONE must resolve in minimal containers
)

type Config struct {
	// Discord
	DiscordToken   string
	DiscordGuildID string // empty = register commands globally

	// UniFi Access controller
	UnifiHost      string
	UnifiToken     string
	UnifiVerifyTLS bool
	UnifiTimeout   time.Duration

	Debug  bool
	Silent bool // replies are ephemeral (only the invoking user sees them)

	AllowedChannelIDs []string // empty = every channel is allowed

	StatusChannelID     string
	StatusChannelPrefix string
	StatusListDoors     bool

	Timezone string
	Location *time.Location

	// ntfy
	NotifyURL           string
	NotifyTopic         string
	NotifyToken         string
	NotifyRatePerMinute int

	AuditLogEnabled bool
	AuditLogDir     string
	AuditDBPath     string // optional SQLite mirror of the audit log

	LogFile   string
	LogFormat string // "text" | "json"

	HTTPAddr       string
	HealthGRPCAddr string
}

func FromEnv() Config {
	tz := getenvDefault("TIMEZONE", "UTC")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = nil // reported by Validate
	}

	logFormat := strings.ToLower(getenvDefault("LOG_FORMAT", "text"))
	if logFormat != "text" && logFormat != "json" {
		// fail-soft: treat unknown as text
		logFormat = "text"
	}

	return Config{
		DiscordToken:   strings.TrimSpace(os.Getenv("DISCORD_TOKEN")),
		DiscordGuildID: strings.TrimSpace(os.Getenv("DISCORD_GUILD_ID")),

		UnifiHost:      strings.TrimSpace(os.Getenv("UNIFI_HOST")),
		UnifiToken:     strings.TrimSpace(os.Getenv("UNIFI_TOKEN")),
		UnifiVerifyTLS: getenvBool("UNIFI_VERIFY_TLS", false),
		UnifiTimeout:   getenvDuration("UNIFI_TIMEOUT", 10*time.Second),

		Debug:  getenvBool("DEBUG", false),
		Silent: getenvBool("SILENT", false),

		AllowedChannelIDs: splitCSV(os.Getenv("ALLOWED_CHANNEL_IDS")),

		StatusChannelID:     strings.TrimSpace(os.Getenv("STATUS_CHANNEL_ID")),
		StatusChannelPrefix: getenvDefault("STATUS_CHANNEL_PREFIX", "door-status-"),
		StatusListDoors:     getenvBool("STATUS_LIST_DOORS", false),

		Timezone: tz,
		Location: loc,

		NotifyURL:           strings.TrimRight(strings.TrimSpace(os.Getenv("NTFY_URL")), "/"),
		NotifyTopic:         strings.Trim(strings.TrimSpace(os.Getenv("NTFY_TOPIC")), "/"),
		NotifyToken:         strings.TrimSpace(os.Getenv("NTFY_TOKEN")),
		NotifyRatePerMinute: getenvInt("NTFY_RATE_PER_MINUTE", 30),

		AuditLogEnabled: getenvBool("AUDIT_LOG_ENABLED", false),
		AuditLogDir:     getenvDefault("AUDIT_LOG_DIR", "./logs"),
		AuditDBPath:     strings.TrimSpace(os.Getenv("AUDIT_DB_PATH")),

		LogFile:   strings.TrimSpace(os.Getenv("LOG_FILE")),
		LogFormat: logFormat,

		HTTPAddr:       strings.TrimSpace(os.Getenv("HTTP_ADDR")),
		HealthGRPCAddr: strings.TrimSpace(os.Getenv("HEALTH_GRPC_ADDR")),
	}
}

// Validate checks the settings the bot cannot run without.  Every problem is
// collected so the operator sees the full list in one start attempt.
func (c Config) Validate() error {
	var problems []string

	if c.DiscordToken == "" {
		problems = append(problems, "DISCORD_TOKEN is required")
	}
	if c.UnifiHost == "" {
		problems = append(problems, "UNIFI_HOST is required")
	} else if _, err := url.Parse(NormalizeBaseURL(c.UnifiHost)); err != nil {
		problems = append(problems, "UNIFI_HOST is not a valid URL: "+err.Error())
	}
	if c.UnifiToken == "" {
		problems = append(problems, "UNIFI_TOKEN is required")
	}
	if c.Location == nil {
		problems = append(problems, "TIMEZONE is not a known IANA zone: "+c.Timezone)
	}
	if c.UnifiTimeout <= 0 {
		problems = append(problems, "UNIFI_TIMEOUT must be positive")
	}
	if c.AuditLogEnabled && strings.TrimSpace(c.AuditLogDir) == "" {
		problems = append(problems, "AUDIT_LOG_DIR is required when AUDIT_LOG_ENABLED is set")
	}
	if (c.NotifyURL == "") != (c.NotifyTopic == "") {
		problems = append(problems, "NTFY_URL and NTFY_TOPIC must be set together")
	}

	if len(problems) == 0 {
		return nil
	}
	return &Error{Problems: problems}
}

// NotifyEnabled reports whether a push endpoint is configured.
func (c Config) NotifyEnabled() bool {
	return c.NotifyURL != "" && c.NotifyTopic != ""
}

// ControllerBaseURL is the API root for the configured controller host.
func (c Config) ControllerBaseURL() string {
	return NormalizeBaseURL(c.UnifiHost)
}

// NormalizeBaseURL turns a bare host ("10.0.0.5:12445") or a full URL into
// the controller's /api/v1 root.
func NormalizeBaseURL(host string) string {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if host == "" {
		return ""
	}
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}
	return host + "/api/v1"
}

func getenvDefault(key, def string) string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// bare integers are seconds
		if n, nerr := strconv.Atoi(v); nerr == nil {
			return time.Duration(n) * time.Second
		}
		return def
	}
	return d
}

func splitCSV(v string) []string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
