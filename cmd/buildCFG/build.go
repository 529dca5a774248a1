package buildCFG

import (
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/config"
	"github.com/wb-go/wbf/dbpg"
)

type ServerConfig struct {
	Port string
}

type RabbitConfig struct {
	Url      string
	Exchange string
	Queue    string
}

// AppConfig carries the activity-service settings that do not belong to
// any one backend: the public base URL baked into QR links and the login
// session TTL.
type AppConfig struct {
	BaseURL    string
	SessionTTL time.Duration
}

func BuildServerConfig(cfg *config.Config, log *zerolog.Logger) ServerConfig {
	port := cfg.GetString("server.port")
	if port == "" {
		port = "8080"
		log.Warn().Msg("server.port not set, defaulting to 8080")
	}
	return ServerConfig{Port: port}
}

func BuildDBConfig(cfg *config.Config, log *zerolog.Logger) (string, []string, *dbpg.Options, error) {
	masterDSN := cfg.GetString("database.master_dsn")
	if masterDSN == "" {
		return "", nil, nil, errors.New("database.master_dsn is required")
	}

	var slaveDSNs []string
	if raw := cfg.GetString("database.slave_dsns"); raw != "" {
		for _, dsn := range strings.Split(raw, ",") {
			if dsn = strings.TrimSpace(dsn); dsn != "" {
				slaveDSNs = append(slaveDSNs, dsn)
			}
		}
	}

	opts := &dbpg.Options{
		MaxOpenConns:    cfg.GetInt("database.max_open_conns"),
		MaxIdleConns:    cfg.GetInt("database.max_idle_conns"),
		ConnMaxLifetime: parseDuration(cfg.GetString("database.conn_max_lifetime"), 0, log),
	}

	log.Info().
		Int("slaves", len(slaveDSNs)).
		Msg("database configuration loaded")

	return masterDSN, slaveDSNs, opts, nil
}

func BuildRabbitConfig(cfg *config.Config, log *zerolog.Logger) (RabbitConfig, error) {
	rc := RabbitConfig{
		Url:      cfg.GetString("rabbit.url"),
		Exchange: cfg.GetString("rabbit.exchange"),
		Queue:    cfg.GetString("rabbit.queue"),
	}
	if rc.Url == "" {
		return rc, errors.New("rabbit.url is required")
	}
	if rc.Exchange == "" {
		rc.Exchange = "activities.delayed"
	}
	if rc.Queue == "" {
		rc.Queue = "activities.timers"
	}

	log.Info().
		Str("exchange", rc.Exchange).
		Str("queue", rc.Queue).
		Msg("rabbit configuration loaded")

	return rc, nil
}

func BuildAppConfig(cfg *config.Config, log *zerolog.Logger) AppConfig {
	ac := AppConfig{
		BaseURL:    cfg.GetString("app.base_url"),
		SessionTTL: parseDuration(cfg.GetString("app.session_ttl"), 5*time.Minute, log),
	}
	if ac.BaseURL == "" {
		log.Warn().Msg("app.base_url not set, QR links will use request headers")
	}
	return ac
}

func parseDuration(raw string, fallback time.Duration, log *zerolog.Logger) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Warn().Str("value", raw).Msg("invalid duration in config, using default")
		return fallback
	}
	return d
}
