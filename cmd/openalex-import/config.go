package main

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/OFFIS-RIT/openalex-import/internal/storage"
	"github.com/OFFIS-RIT/openalex-import/internal/util"
	"github.com/OFFIS-RIT/openalex-import/pkg/neolace"
	"github.com/OFFIS-RIT/openalex-import/pkg/openalex"
)

// fileConfig is the optional YAML run configuration. Flags win over file
// values.
type fileConfig struct {
	DataDir      string                      `yaml:"data_dir"`
	RecoveryDir  string                      `yaml:"recovery_dir"`
	ConnectionID string                      `yaml:"connection_id"`
	Country      string                      `yaml:"country"`
	BatchSize    int                         `yaml:"batch_size"`
	BatchSizes   map[openalex.EntityKind]int `yaml:"batch_sizes"`
}

func loadFileConfig(path string) (*fileConfig, error) {
	if path == "" {
		return &fileConfig{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := validateFileConfig(&cfg); err != nil {
		return nil, fmt.Errorf("loading config %s: %w", path, err)
	}
	return &cfg, nil
}

func validateFileConfig(cfg *fileConfig) error {
	if cfg.BatchSize < 0 {
		return fmt.Errorf("batch_size must not be negative")
	}
	for kind, size := range cfg.BatchSizes {
		if _, err := openalex.ParseEntityKinds(string(kind)); err != nil {
			return fmt.Errorf("batch_sizes: %w", err)
		}
		if size <= 0 {
			return fmt.Errorf("batch_sizes.%s must be positive", kind)
		}
	}
	return nil
}

func newStoreClient(ctx context.Context) (*neolace.HTTPClient, error) {
	client, err := neolace.NewHTTPClient(neolace.NewHTTPClientParams{
		Endpoint: util.GetEnvString("NEOLACE_API_ENDPOINT", "http://local.neolace.net:5554"),
		APIKey:   util.GetEnvString("NEOLACE_API_KEY", "SYS_KEY_INSECURE_DEV_KEY"),
		SiteKey:  util.GetEnvString("NEOLACE_SITE_KEY", "openalex"),
	})
	if err != nil {
		return nil, err
	}
	if err := client.CheckHealth(ctx); err != nil {
		return nil, fmt.Errorf("content store is not reachable: %w", err)
	}
	return client, nil
}

func newSnapshotBucket(ctx context.Context) (*storage.Bucket, error) {
	client, err := storage.NewS3Client(ctx, storage.NewS3ClientParams{
		Region:    util.GetEnvString("AWS_REGION", "us-east-1"),
		Endpoint:  util.GetEnv("AWS_ENDPOINT"),
		AccessKey: util.GetEnv("AWS_ACCESS_KEY"),
		SecretKey: util.GetEnv("AWS_SECRET_KEY"),
	})
	if err != nil {
		return nil, err
	}
	return storage.NewBucket(client, util.GetEnvString("AWS_BUCKET", "openalex")), nil
}
