// Package config loads engine defaults from the environment.
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sethvargo/go-envconfig"
)

// Config holds defaults that CLI flags may override.
type Config struct {
	// Silence detection
	ThresholdDB float64 `env:"VIBHAJ_THRESHOLD_DB, default=-40" validate:"gte=-60,lte=-20"`
	MinSilence  float64 `env:"VIBHAJ_MIN_SILENCE, default=0.5" validate:"gte=0.2,lte=2"`

	// Export
	Format      string `env:"VIBHAJ_FORMAT, default=mp3" validate:"oneof=mp3 wav"`
	BitrateKbps int    `env:"VIBHAJ_BITRATE, default=128" validate:"gte=32,lte=320"`
	Concurrency int    `env:"VIBHAJ_CONCURRENCY, default=1" validate:"gte=1,lte=16"`

	// Binaries; empty means look them up
	FFmpegPath  string `env:"VIBHAJ_FFMPEG_PATH"`
	FFprobePath string `env:"VIBHAJ_FFPROBE_PATH"`

	// Optional S3 output
	S3Bucket   string `env:"VIBHAJ_S3_BUCKET"`
	S3Region   string `env:"VIBHAJ_S3_REGION" validate:"required_with=S3Bucket"`
	S3Endpoint string `env:"VIBHAJ_S3_ENDPOINT" validate:"omitempty,url"`
	S3Prefix   string `env:"VIBHAJ_S3_PREFIX"`

	// Static credentials; when unset the default AWS chain is used
	S3AccessKeyID     string `env:"VIBHAJ_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"VIBHAJ_S3_SECRET_ACCESS_KEY" validate:"required_with=S3AccessKeyID"`
}

var validate = validator.New()

// Load reads the environment and validates the result.
func Load(ctx context.Context) (*Config, error) {
	return load(ctx, envconfig.OsLookuper())
}

func load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks ranges. Call it again after applying flag overrides.
func (c *Config) Validate() error {
	c.Format = strings.ToLower(c.Format)
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// S3Enabled reports whether archives should be uploaded instead of written
// locally.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}
