package config

import (
	"context"

	"github.com/sethvargo/go-envconfig"
)

// MinioConfig holds object store credentials. They only come from the
// environment (or .env) so they never land in a config file.
type MinioConfig struct {
	Endpoint string `env:"MINIO_ENDPOINT, required"`
	Username string `env:"MINIO_USERNAME, required"`
	Password string `env:"MINIO_PASSWORD, required"`
	Bucket   string `env:"MINIO_BUCKET, default=voxgate"`
	Secure   bool   `env:"MINIO_SECURE, default=false"`
	Region   string `env:"MINIO_REGION, default=us-east-1"`
}

func NewMinioConfigFromEnv(ctx context.Context) (*MinioConfig, error) {
	var cfg MinioConfig
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
