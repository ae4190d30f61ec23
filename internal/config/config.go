package config

import (
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/melody-ding/go-vidthumbs/internal/sequencer"
	"github.com/melody-ding/go-vidthumbs/internal/sink"
)

type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	ThumbCount     int `env:"THUMB_COUNT"      envDefault:"8"`
	ThumbMaxWidth  int `env:"THUMB_MAX_WIDTH"  envDefault:"1280"`
	ThumbMaxHeight int `env:"THUMB_MAX_HEIGHT" envDefault:"1280"`
	JPEGQuality    int `env:"JPEG_QUALITY"     envDefault:"70"`

	Timeout     time.Duration `env:"TIMEOUT"      envDefault:"0s"`
	GrabTimeout time.Duration `env:"GRAB_TIMEOUT" envDefault:"30s"`
	TempDir     string        `env:"TEMP_DIR"`

	Sink      string `env:"SINK"       envDefault:"dir"`
	OutputDir string `env:"OUTPUT_DIR" envDefault:"thumbs"`
	Bucket    string `env:"BUCKET"`
	Prefix    string `env:"PREFIX"`

	S3Region   string `env:"S3_REGION"   envDefault:"us-east-1"`
	S3Endpoint string `env:"S3_ENDPOINT"`

	MinIOEndpoint  string `env:"MINIO_ENDPOINT"   envDefault:"localhost:9000"`
	MinIOAccessKey string `env:"MINIO_ACCESS_KEY" envDefault:"minioadmin"`
	MinIOSecretKey string `env:"MINIO_SECRET_KEY" envDefault:"minioadmin"`
	MinIOUseSSL    bool   `env:"MINIO_USE_SSL"    envDefault:"false"`

	// Notifications are disabled while RABBITMQ_URL is empty.
	RabbitMQURL      string `env:"RABBITMQ_URL"`
	RabbitMQExchange string `env:"RABBITMQ_EXCHANGE" envDefault:"vidthumbs"`

	// Zero disables the metrics server, empty disables tracing.
	MetricsPort  int    `env:"METRICS_PORT"`
	OTELEndpoint string `env:"OTEL_ENDPOINT"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CaptureOptions returns the sequencer options configured by the environment.
func (c *Config) CaptureOptions() sequencer.Options {
	return sequencer.Options{
		MaxWidth:  c.ThumbMaxWidth,
		MaxHeight: c.ThumbMaxHeight,
		Count:     c.ThumbCount,
	}
}

func (c *Config) SinkConfig() sink.Config {
	return sink.Config{
		Kind:           c.Sink,
		OutputDir:      c.OutputDir,
		Bucket:         c.Bucket,
		Prefix:         c.Prefix,
		S3Region:       c.S3Region,
		S3Endpoint:     c.S3Endpoint,
		MinioEndpoint:  c.MinIOEndpoint,
		MinioAccessKey: c.MinIOAccessKey,
		MinioSecretKey: c.MinIOSecretKey,
		MinioUseSSL:    c.MinIOUseSSL,
	}
}
