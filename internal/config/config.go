package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

const envPrefix = "CAMPUSGATE_"

type Config struct {
	HTTPAddr string `toml:"http_addr"`
	GRPCAddr string `toml:"grpc_addr"` // empty disables the health server

	// TrustedProxies lists the IPs or CIDRs whose X-Forwarded-For is
	// believed.  Empty means the peer address is the client.
	TrustedProxies []string `toml:"trusted_proxies"`

	Env       string `toml:"env"` // "dev" | "prod"
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"` // "json" | "console"

	// Storage
	StoreDriver string `toml:"store_driver"` // memory | sqlite | postgres
	DBPath      string `toml:"db_path"`
	PostgresDSN string `toml:"postgres_dsn"`

	// Redis backs admin sessions when set; otherwise they stay in memory.
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`

	// MQTT decision events; empty broker disables publishing.
	MQTTBroker   string `toml:"mqtt_broker"`
	MQTTClientID string `toml:"mqtt_client_id"`
	MQTTTopic    string `toml:"mqtt_topic"`

	// Gates
	RequireDeviceAuth bool     `toml:"require_device_auth"`
	DeviceKeys        []string `toml:"device_keys"` // "gate:key", memory driver only
	GateOnlineMinutes int      `toml:"gate_online_minutes"`

	// Decision engine and audit log
	AccessDeadlineMs    int `toml:"access_deadline_ms"`
	AuditQueueSize      int `toml:"audit_queue_size"`
	AuditWorkers        int `toml:"audit_workers"`
	AuditWriteTimeoutMs int `toml:"audit_write_timeout_ms"`

	// Heartbeat retention
	HeartbeatRetentionDays int `toml:"heartbeat_retention_days"` // 0 = keep forever
	PruneIntervalHours     int `toml:"prune_interval_hours"`

	// Admin auth
	SessionTTLMinutes  int     `toml:"session_ttl_minutes"`
	OTPTTLMinutes      int     `toml:"otp_ttl_minutes"`
	LoginRatePerMinute float64 `toml:"login_rate_per_minute"`
	LoginBurst         int     `toml:"login_burst"`

	SeedDev bool `toml:"seed_dev"`
}

func Defaults() Config {
	return Config{
		HTTPAddr:  ":8080",
		Env:       "dev",
		LogLevel:  "info",
		LogFormat: "json",

		StoreDriver: "sqlite",
		DBPath:      "./data/campusgate.db",

		MQTTClientID: "campusgate-server",
		MQTTTopic:    "campusgate/access",

		RequireDeviceAuth: true,
		GateOnlineMinutes: 5,

		AccessDeadlineMs:    100,
		AuditQueueSize:      1024,
		AuditWorkers:        2,
		AuditWriteTimeoutMs: 2000,

		HeartbeatRetentionDays: 30,
		PruneIntervalHours:     6,

		SessionTTLMinutes: 480,
		OTPTTLMinutes:     5,
		// 5 per IP per 15 minutes.
		LoginRatePerMinute: 5.0 / 15.0,
		LoginBurst:         5,
	}
}

// Load reads .env (if present), then the TOML file named by
// CAMPUSGATE_CONFIG_FILE (if set), then CAMPUSGATE_* variables.  Later
// sources win.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := strings.TrimSpace(os.Getenv(envPrefix + "CONFIG_FILE")); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode config file %s: %w", path, err)
		}
	}
	applyEnv(&cfg)
	cfg.normalize()
	return cfg, nil
}

func applyEnv(c *Config) {
	str(&c.HTTPAddr, "HTTP_ADDR")
	str(&c.GRPCAddr, "GRPC_ADDR")
	if v, ok := lookup("TRUSTED_PROXIES"); ok {
		c.TrustedProxies = splitCSV(v)
	}
	str(&c.Env, "ENV")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.LogFormat, "LOG_FORMAT")

	str(&c.StoreDriver, "STORE_DRIVER")
	str(&c.DBPath, "DB_PATH")
	str(&c.PostgresDSN, "POSTGRES_DSN")

	str(&c.RedisAddr, "REDIS_ADDR")
	str(&c.RedisPassword, "REDIS_PASSWORD")
	num(&c.RedisDB, "REDIS_DB")

	str(&c.MQTTBroker, "MQTT_BROKER")
	str(&c.MQTTClientID, "MQTT_CLIENT_ID")
	str(&c.MQTTTopic, "MQTT_TOPIC")

	boolean(&c.RequireDeviceAuth, "REQUIRE_DEVICE_AUTH")
	if v, ok := lookup("DEVICE_KEYS"); ok {
		c.DeviceKeys = splitCSV(v)
	}
	num(&c.GateOnlineMinutes, "GATE_ONLINE_MINUTES")

	num(&c.AccessDeadlineMs, "ACCESS_DEADLINE_MS")
	num(&c.AuditQueueSize, "AUDIT_QUEUE_SIZE")
	num(&c.AuditWorkers, "AUDIT_WORKERS")
	num(&c.AuditWriteTimeoutMs, "AUDIT_WRITE_TIMEOUT_MS")

	num(&c.HeartbeatRetentionDays, "HEARTBEAT_RETENTION_DAYS")
	num(&c.PruneIntervalHours, "PRUNE_INTERVAL_HOURS")

	num(&c.SessionTTLMinutes, "SESSION_TTL_MINUTES")
	num(&c.OTPTTLMinutes, "OTP_TTL_MINUTES")
	if v, ok := lookup("LOGIN_RATE_PER_MINUTE"); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			c.LoginRatePerMinute = f
		}
	}
	num(&c.LoginBurst, "LOGIN_BURST")

	boolean(&c.SeedDev, "SEED_DEV")
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	if c.Env != "dev" && c.Env != "prod" {
		// fail-soft: treat unknown as dev
		c.Env = "dev"
	}
	c.StoreDriver = strings.ToLower(strings.TrimSpace(c.StoreDriver))
	switch c.StoreDriver {
	case "memory", "sqlite", "postgres":
	default:
		c.StoreDriver = "sqlite"
	}
	if c.AccessDeadlineMs <= 0 {
		c.AccessDeadlineMs = 100
	}
}

func lookup(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(envPrefix + key))
	return v, v != ""
}

func str(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

// num ignores malformed and negative values.
func num(dst *int, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return
	}
	*dst = n
}

func boolean(dst *bool, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		*dst = true
	case "0", "false", "no", "off":
		*dst = false
	}
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
