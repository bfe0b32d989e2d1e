package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "voltway/libs/config"
)

// Config defines the charging service configuration.
type Config struct {
	HTTP struct {
		Port string `yaml:"port" env:"CHARGING_HTTP_PORT"`
	} `yaml:"http"`
	Database struct {
		DSN string `yaml:"dsn" env:"CHARGING_POSTGRES_DSN"`
	} `yaml:"database"`
	Redis struct {
		Addr          string `yaml:"addr" env:"CHARGING_REDIS_ADDR"`
		Password      string `yaml:"password" env:"CHARGING_REDIS_PASSWORD"`
		DB            int    `yaml:"db" env:"CHARGING_REDIS_DB"`
		TTLSeconds    int    `yaml:"ttlSeconds" env:"CHARGING_REDIS_TTL"`
		EventsChannel string `yaml:"eventsChannel" env:"CHARGING_EVENTS_CHANNEL"`
	} `yaml:"redis"`
	Auth struct {
		JWTSecret string `yaml:"jwtSecret" env:"CHARGING_JWT_SECRET"`
	} `yaml:"auth"`
	Reservation struct {
		BufferMinutes    int `yaml:"bufferMinutes" env:"CHARGING_BUFFER_MINUTES"`
		ClockSkewSeconds int `yaml:"clockSkewSeconds" env:"CHARGING_CLOCK_SKEW_SECONDS"`
		HorizonDays      int `yaml:"horizonDays" env:"CHARGING_HORIZON_DAYS"`
		SweepSeconds     int `yaml:"sweepSeconds" env:"CHARGING_SWEEP_SECONDS"`
	} `yaml:"reservation"`
	Session struct {
		CancelGraceMinutes  int `yaml:"cancelGraceMinutes" env:"CHARGING_CANCEL_GRACE_MINUTES"`
		WarnMinutes         int `yaml:"warnMinutes" env:"CHARGING_WARN_MINUTES"`
		AutoCancelMinutes   int `yaml:"autoCancelMinutes" env:"CHARGING_AUTO_CANCEL_MINUTES"`
		TimeoutSweepSeconds int `yaml:"timeoutSweepSeconds" env:"CHARGING_TIMEOUT_SWEEP_SECONDS"`
	} `yaml:"session"`
	Telemetry struct {
		SampleSeconds int `yaml:"sampleSeconds" env:"CHARGING_TELEMETRY_SAMPLE_SECONDS"`
	} `yaml:"telemetry"`
	Recommend struct {
		TravelTimeoutMS int `yaml:"travelTimeoutMs" env:"CHARGING_TRAVEL_TIMEOUT_MS"`
	} `yaml:"recommend"`
}

// Load reads configuration via the shared helper and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Port = "8085"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.TTLSeconds = 86400
	cfg.Reservation.BufferMinutes = 20
	cfg.Reservation.ClockSkewSeconds = 120
	cfg.Reservation.HorizonDays = 7
	cfg.Reservation.SweepSeconds = 30
	cfg.Session.CancelGraceMinutes = 5
	cfg.Session.WarnMinutes = 10
	cfg.Session.AutoCancelMinutes = 15
	cfg.Session.TimeoutSweepSeconds = 15
	cfg.Telemetry.SampleSeconds = 5
	cfg.Recommend.TravelTimeoutMS = 1500

	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Database.DSN) == "" {
		return nil, errors.New("config: database dsn required")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return nil, errors.New("config: redis addr required")
	}
	return cfg, nil
}

// HTTPAddress returns :port style.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "8085"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}

// ActiveSessionTTL returns the redis cache ttl.
func (c *Config) ActiveSessionTTL() time.Duration {
	if c.Redis.TTLSeconds <= 0 {
		return 24 * time.Hour
	}
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}

// Buffer returns the reservation safety margin.
func (c *Config) Buffer() time.Duration {
	return time.Duration(c.Reservation.BufferMinutes) * time.Minute
}

// ClockSkew returns the accepted past-start tolerance.
func (c *Config) ClockSkew() time.Duration {
	return time.Duration(c.Reservation.ClockSkewSeconds) * time.Second
}

// Horizon returns the next-available search horizon.
func (c *Config) Horizon() time.Duration {
	return time.Duration(c.Reservation.HorizonDays) * 24 * time.Hour
}

// SweepInterval returns the reservation status sweep cadence.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Reservation.SweepSeconds) * time.Second
}

// CancelGrace returns the handshake grace period.
func (c *Config) CancelGrace() time.Duration {
	return time.Duration(c.Session.CancelGraceMinutes) * time.Minute
}

// WarnAfter returns the warning threshold.
func (c *Config) WarnAfter() time.Duration {
	return time.Duration(c.Session.WarnMinutes) * time.Minute
}

// AutoCancelAfter returns the confirmation deadline.
func (c *Config) AutoCancelAfter() time.Duration {
	return time.Duration(c.Session.AutoCancelMinutes) * time.Minute
}

// TimeoutSweepInterval returns the session timeout sweep cadence.
func (c *Config) TimeoutSweepInterval() time.Duration {
	return time.Duration(c.Session.TimeoutSweepSeconds) * time.Second
}

// TelemetrySampleInterval returns the simulator cadence.
func (c *Config) TelemetrySampleInterval() time.Duration {
	if c.Telemetry.SampleSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(c.Telemetry.SampleSeconds) * time.Second
}

// TravelTimeout bounds external travel-estimation calls.
func (c *Config) TravelTimeout() time.Duration {
	if c.Recommend.TravelTimeoutMS <= 0 {
		return 1500 * time.Millisecond
	}
	return time.Duration(c.Recommend.TravelTimeoutMS) * time.Millisecond
}
