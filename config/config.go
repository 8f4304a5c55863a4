package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"torramel/notify-relay/log"

	"github.com/alexflint/go-arg"
)

const (
	MySQL    DbDriver = "mysql"
	Postgres DbDriver = "postgres"
)

type DbDriver string

var supportedDbTypes = map[DbDriver]bool{
	Postgres: true,
	MySQL:    true,
}

type Config struct {
	SkipMigrations    bool     `arg:"--skip-migrations,env:SKIP_MIGRATIONS"`
	DBHost            string   `arg:"--db-host,env:DB_HOST,required"`
	DBPort            uint32   `arg:"--db-port,env:DB_PORT,required"`
	DBUser            string   `arg:"--db-user,env:DB_USER,required"`
	DBPass            string   `arg:"--db-pass,env:DB_PASS,required"`
	DBSchema          string   `arg:"--db-schema,env:DB_SCHEMA,required"`
	DBDriver          DbDriver `arg:"--db-driver,env:DB_DRIVER,required"`
	TLSEnable         bool     `arg:"--db-tls,env:TLS_ENABLE"`
	TLSSkipVerifyPeer bool     `arg:"--db-tls-skip-verify-peer,env:TLS_SKIP_VERIFY_PEER"`

	SMTPHost string `arg:"--smtp-host,env:SMTP_HOST,required"`
	SMTPPort int    `arg:"--smtp-port,env:SMTP_PORT"`
	SMTPUser string `arg:"--smtp-user,env:SMTP_USER"`
	SMTPPass string `arg:"--smtp-pass,env:SMTP_PASS"`
	SMTPFrom string `arg:"--smtp-from,env:SMTP_FROM,required"`

	TriggerToken string `arg:"--trigger-token,env:TRIGGER_TOKEN"`
	BaseURL      string `arg:"--base-url,env:BASE_URL"`
	Timezone     string `arg:"--timezone,env:TIMEZONE"`

	MaxSendAttempts         int     `arg:"--max-send-attempts,env:MAX_SEND_ATTEMPTS"`
	RetryBaseSec            int     `arg:"--retry-base-sec,env:RETRY_BASE_SEC"`
	RetryCapSec             int     `arg:"--retry-cap-sec,env:RETRY_CAP_SEC"`
	RetryJitter             float64 `arg:"--retry-jitter,env:RETRY_JITTER"`
	BreakerFailureThreshold int     `arg:"--breaker-failure-threshold,env:BREAKER_FAILURE_THRESHOLD"`
	BreakerCooldownSec      int     `arg:"--breaker-cooldown-sec,env:BREAKER_COOLDOWN_SEC"`

	BatchDelaySec        int `arg:"--batch-delay-sec,env:BATCH_DELAY_SEC"`
	QueueDrainLimit      int `arg:"--queue-drain-limit,env:QUEUE_DRAIN_LIMIT"`
	FlushLimit           int `arg:"--flush-limit,env:FLUSH_LIMIT"`
	ProcessingTimeoutSec int `arg:"--processing-timeout-sec,env:PROCESSING_TIMEOUT_SEC"`
	RetentionDays        int `arg:"--retention-days,env:RETENTION_DAYS"`
	CleanupSampling      int `arg:"--cleanup-sampling,env:CLEANUP_SAMPLING"`

	HTTPPort   uint32 `arg:"--http-port,env:HTTP_PORT"`
	RunServe   bool   `arg:"--serve,env:RUN_SERVE"`
	RunCleanup bool   `arg:"--cleanup,env:RUN_CLEANUP"`

	SidecarProxyUrl string `arg:"--sidecar-proxy-url,env:SIDECAR_PROXY_URL"`
}

func NewConfig() (*Config, error) {
	c := &Config{
		SMTPPort:                587,
		Timezone:                "Asia/Jerusalem",
		MaxSendAttempts:         5,
		RetryBaseSec:            120,
		RetryCapSec:             1800,
		RetryJitter:             0.3,
		BreakerFailureThreshold: 5,
		BreakerCooldownSec:      300,
		BatchDelaySec:           180,
		QueueDrainLimit:         20,
		FlushLimit:              50,
		ProcessingTimeoutSec:    600,
		RetentionDays:           30,
		CleanupSampling:         10,
		HTTPPort:                8080,
	}
	arg.MustParse(c)

	if !supportedDbTypes[c.DBDriver] {
		return nil, fmt.Errorf("the DB_DRIVER provided (%s) is not supported", c.DBDriver)
	}

	return c, nil
}

func (c *Config) GetDSN() string {
	switch c.DBDriver {
	case MySQL:
		tls := "false"
		if c.TLSEnable {
			if c.TLSSkipVerifyPeer {
				tls = "skip-verify"
			} else {
				tls = "true"
			}
		}
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=%s&multiStatements=true", c.DBUser, c.DBPass, c.DBHost, c.DBPort, c.DBSchema, tls)
	case Postgres:
		sslMode := "disable"
		if c.TLSEnable {
			if c.TLSSkipVerifyPeer {
				sslMode = "require"
			} else {
				sslMode = "verify-full"
			}
		}
		return fmt.Sprintf("%s://%s@%s:%d/%s?sslmode=%s", c.DBDriver, url.UserPassword(c.DBUser, c.DBPass), c.DBHost, c.DBPort, c.DBSchema, sslMode)
	default:
		log.Logger.Fatalf("the DB driver configured (%s) is not supported", c.DBDriver)
		return ""
	}
}

func (c *Config) GetRetryBase() time.Duration {
	return time.Duration(c.RetryBaseSec) * time.Second
}

func (c *Config) GetRetryCap() time.Duration {
	return time.Duration(c.RetryCapSec) * time.Second
}

func (c *Config) GetBreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSec) * time.Second
}

func (c *Config) GetBatchDelay() time.Duration {
	return time.Duration(c.BatchDelaySec) * time.Second
}

func (c *Config) GetProcessingTimeout() time.Duration {
	return time.Duration(c.ProcessingTimeoutSec) * time.Second
}

func (c *Config) GetRetention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

func (c *Config) GetSMTPAddress() string {
	return fmt.Sprintf("%s:%d", c.SMTPHost, c.SMTPPort)
}

func (c *Config) GetLocation() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		log.Logger.Errorf("unable to load the configured timezone (%s), falling back to UTC: %s", c.Timezone, err)
		return time.UTC
	}
	return loc
}

func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"SkipMigrations":          c.SkipMigrations,
		"DBHost":                  c.DBHost,
		"DBPort":                  c.DBPort,
		"DBUser":                  c.DBUser,
		"DBPass":                  "xxxxx",
		"DBSchema":                c.DBSchema,
		"DBDriver":                c.DBDriver,
		"SMTPHost":                c.SMTPHost,
		"SMTPPort":                c.SMTPPort,
		"SMTPUser":                c.SMTPUser,
		"SMTPPass":                "xxxxx",
		"SMTPFrom":                c.SMTPFrom,
		"TriggerToken":            "xxxxx",
		"BaseURL":                 c.BaseURL,
		"Timezone":                c.Timezone,
		"MaxSendAttempts":         c.MaxSendAttempts,
		"RetryBaseSec":            c.RetryBaseSec,
		"RetryCapSec":             c.RetryCapSec,
		"RetryJitter":             c.RetryJitter,
		"BreakerFailureThreshold": c.BreakerFailureThreshold,
		"BreakerCooldownSec":      c.BreakerCooldownSec,
		"BatchDelaySec":           c.BatchDelaySec,
		"QueueDrainLimit":         c.QueueDrainLimit,
		"FlushLimit":              c.FlushLimit,
		"ProcessingTimeoutSec":    c.ProcessingTimeoutSec,
		"RetentionDays":           c.RetentionDays,
		"CleanupSampling":         c.CleanupSampling,
		"HTTPPort":                c.HTTPPort,
		"RunServe":                c.RunServe,
		"RunCleanup":              c.RunCleanup,
		"SidecarProxyUrl":         c.SidecarProxyUrl,
	})
}

func (d DbDriver) MySQL() bool {
	return d == MySQL
}

func (d DbDriver) Postgres() bool {
	return d == Postgres
}

func (d DbDriver) String() string {
	return string(d)
}
