package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Judge drivers.
const (
	JudgeDriverJudge0 = "judge0"
	JudgeDriverDocker = "docker"
)

// Config holds runtime configuration values for the contest API service.
type Config struct {
	AppName     string
	AppEnv      string
	AppPort     string
	DatabaseURL string
	RedisURL    string
	NATSURL     string

	// EventsChannel prefixes the redis channel and NATS subject used for contest events.
	EventsChannel string
	JWTSecret     string
	AllowOrigins  string

	JudgeDriver         string
	JudgeURL            string
	JudgeAuthToken      string
	JudgePollInterval   time.Duration
	JudgeMaxPolls       int
	JudgeRequestTimeout time.Duration
	DockerHost          string
	ExecutionTimeout    time.Duration
	CodeRunMemoryMB     int
	CodeRunCPUShares    int

	WarningThreshold     int
	SweepInterval        time.Duration
	LeaderboardCacheTTL  time.Duration
	SubmissionsPerMinute int
	ShutdownTimeout      time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
// Every key maps to CONTEST_<KEY> with dots replaced by underscores.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CONTEST")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "Contest API")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("events.channel", "contest")
	v.SetDefault("cors.allow_origins", "*")
	v.SetDefault("judge.driver", JudgeDriverJudge0)
	v.SetDefault("judge.poll_interval", "500ms")
	v.SetDefault("judge.max_polls", 20)
	v.SetDefault("judge.request_timeout", "10s")
	v.SetDefault("execution_timeout_ms", 5000)
	v.SetDefault("code_run_memory_mb", 256)
	v.SetDefault("code_run_cpu_shares", 512)
	v.SetDefault("proctoring.warning_threshold", 3)
	v.SetDefault("sweep.interval", "15s")
	v.SetDefault("leaderboard.cache_ttl", "30s")
	v.SetDefault("rate_limit.submissions_per_minute", 10)
	v.SetDefault("shutdown.timeout", "10s")

	durations := map[string]time.Duration{}
	for _, key := range []string{"judge.poll_interval", "judge.request_timeout", "sweep.interval", "leaderboard.cache_ttl", "shutdown.timeout"} {
		parsed, err := time.ParseDuration(v.GetString(key))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", key, err)
		}
		durations[key] = parsed
	}

	timeoutMs := v.GetInt("execution_timeout_ms")
	if timeoutMs <= 0 {
		timeoutMs = 5000
	}

	cfg := Config{
		AppName:              v.GetString("app.name"),
		AppEnv:               v.GetString("app.env"),
		AppPort:              v.GetString("app.port"),
		DatabaseURL:          v.GetString("database.url"),
		RedisURL:             v.GetString("redis.url"),
		NATSURL:              v.GetString("nats.url"),
		EventsChannel:        v.GetString("events.channel"),
		JWTSecret:            v.GetString("jwt.secret"),
		AllowOrigins:         v.GetString("cors.allow_origins"),
		JudgeDriver:          strings.ToLower(strings.TrimSpace(v.GetString("judge.driver"))),
		JudgeURL:             v.GetString("judge.url"),
		JudgeAuthToken:       v.GetString("judge.auth_token"),
		JudgePollInterval:    durations["judge.poll_interval"],
		JudgeMaxPolls:        v.GetInt("judge.max_polls"),
		JudgeRequestTimeout:  durations["judge.request_timeout"],
		DockerHost:           v.GetString("docker_host"),
		ExecutionTimeout:     time.Duration(timeoutMs) * time.Millisecond,
		CodeRunMemoryMB:      v.GetInt("code_run_memory_mb"),
		CodeRunCPUShares:     v.GetInt("code_run_cpu_shares"),
		WarningThreshold:     v.GetInt("proctoring.warning_threshold"),
		SweepInterval:        durations["sweep.interval"],
		LeaderboardCacheTTL:  durations["leaderboard.cache_ttl"],
		SubmissionsPerMinute: v.GetInt("rate_limit.submissions_per_minute"),
		ShutdownTimeout:      durations["shutdown.timeout"],
	}

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("jwt secret must be provided")
	}

	switch cfg.JudgeDriver {
	case JudgeDriverJudge0:
		if cfg.JudgeURL == "" {
			return Config{}, fmt.Errorf("judge url must be provided for the judge0 driver")
		}
	case JudgeDriverDocker:
	default:
		return Config{}, fmt.Errorf("unknown judge driver %q", cfg.JudgeDriver)
	}

	if cfg.JudgeMaxPolls <= 0 {
		cfg.JudgeMaxPolls = 20
	}
	if cfg.CodeRunMemoryMB <= 0 {
		cfg.CodeRunMemoryMB = 256
	}
	if cfg.CodeRunCPUShares <= 0 {
		cfg.CodeRunCPUShares = 512
	}
	if cfg.WarningThreshold <= 0 {
		cfg.WarningThreshold = 3
	}
	if cfg.SubmissionsPerMinute <= 0 {
		cfg.SubmissionsPerMinute = 10
	}

	return cfg, nil
}
