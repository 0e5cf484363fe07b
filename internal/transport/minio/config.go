package minio

import (
	"fmt"

	"github.com/koustreak/radosgo/internal/transport"
)

// Option keys understood by this backend.
const (
	OptEndpoint  = "minio_endpoint"
	OptAccessKey = "minio_access_key"
	OptSecretKey = "minio_secret_key"
	OptUseSSL    = "minio_use_ssl"
	OptRegion    = "minio_region"

	// OptCapacityKb is the capacity reported by cluster stats, since S3
	// exposes none.
	OptCapacityKb = "minio_capacity_kb"
)

const defaultCapacityKb = uint64(1 << 30)

// Config holds the settings needed to reach an S3-compatible endpoint.
type Config struct {
	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string

	AccessKey string
	SecretKey string

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string

	CapacityKb uint64
}

// DefaultConfig returns a local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Endpoint:   endpoint,
		AccessKey:  accessKey,
		SecretKey:  secretKey,
		CapacityKb: defaultCapacityKb,
	}
}

// ConfigFrom reads a Config out of the transport options.
func ConfigFrom(cfg transport.Config) (*Config, error) {
	endpoint := cfg.String(OptEndpoint, "")
	if endpoint == "" {
		return nil, transport.Errorf(transport.StatusInvalid, "minio config", fmt.Errorf("%s is required", OptEndpoint))
	}
	useSSL, err := cfg.Bool(OptUseSSL, false)
	if err != nil {
		return nil, err
	}
	capacity, err := cfg.Uint64(OptCapacityKb, defaultCapacityKb)
	if err != nil {
		return nil, err
	}
	c := DefaultConfig(endpoint, cfg[OptAccessKey], cfg[OptSecretKey])
	c.CapacityKb = capacity
	c.UseSSL = useSSL
	c.Region = cfg[OptRegion]
	return c, nil
}
