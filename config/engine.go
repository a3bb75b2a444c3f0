package config

import "time"

// OrphanPolicy decides what happens to a process whose linked form record was
// deleted (spec 4.4): delete the process outright, or mark it orphaned by
// prefixing source_form with "[DELETED]".
type OrphanPolicy string

const (
	OrphanDelete OrphanPolicy = "delete"
	OrphanMark   OrphanPolicy = "mark"
)

// SMTPConfig mirrors the environment surface of spec section 6.5.
type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	UseTLS    bool
}

// EngineConfig is the workflow engine's top-level runtime configuration,
// loaded from environment variables via EnvConfig with the "WORKFLOW" prefix
// by default, the same pattern cli/root.go uses for viper-bound flags.
type EngineConfig struct {
	KanbansDir     string
	ScriptsDir     string
	RepositoryKind string // "flatfile" or "sql"
	FlatFileDir    string
	DatabaseURL    string

	OrphanPolicy OrphanPolicy

	CascadeMaxDepth int
	StuckThreshold  time.Duration

	SMTP SMTPConfig

	APIKey    string
	JWTSecret string

	HTTPAddress string
}

// LoadEngineConfig reads EngineConfig from the environment, applying the
// defaults named throughout spec sections 4 and 6.
func LoadEngineConfig() EngineConfig {
	env := NewEnvConfig("WORKFLOW")
	smtp := NewEnvConfig("") // SMTP_* vars are unprefixed per spec 6.5

	return EngineConfig{
		KanbansDir:     env.GetString("KANBANS_DIR", "config/kanbans"),
		ScriptsDir:     env.GetString("SCRIPTS_DIR", "config/scripts"),
		RepositoryKind: env.GetString("REPOSITORY_KIND", "flatfile"),
		FlatFileDir:    env.GetString("DATA_DIR", "data"),
		DatabaseURL:    env.GetString("DATABASE_URL", ""),

		OrphanPolicy: OrphanPolicy(env.GetString("ORPHAN_POLICY", string(OrphanMark))),

		CascadeMaxDepth: env.GetInt("CASCADE_MAX_DEPTH", 10),
		StuckThreshold:  env.GetDuration("STUCK_THRESHOLD", 48*time.Hour),

		SMTP: SMTPConfig{
			Host:      smtp.GetString("SMTP_HOST", "localhost"),
			Port:      smtp.GetInt("SMTP_PORT", 587),
			Username:  smtp.GetString("SMTP_USERNAME", ""),
			Password:  smtp.GetString("SMTP_PASSWORD", ""),
			FromEmail: smtp.GetString("SMTP_FROM_EMAIL", ""),
			UseTLS:    smtp.GetBool("SMTP_USE_TLS", true),
		},

		APIKey:    env.GetString("API_KEY", ""),
		JWTSecret: env.GetString("JWT_SECRET", ""),

		HTTPAddress: env.GetString("HTTP_ADDRESS", ":8080"),
	}
}
