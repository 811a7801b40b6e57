// Package providers builds the remote store selected by configuration.
package providers

import (
	"context"
	"fmt"
	"os"

	"github.com/transana/srbxfer/internal/config"
	srbhttp "github.com/transana/srbxfer/internal/http"
	"github.com/transana/srbxfer/internal/logging"
	"github.com/transana/srbxfer/internal/remote"
	"github.com/transana/srbxfer/internal/remote/providers/azure"
	"github.com/transana/srbxfer/internal/remote/providers/localdir"
	"github.com/transana/srbxfer/internal/remote/providers/memory"
	"github.com/transana/srbxfer/internal/remote/providers/s3"
)

// Credential environment variables read by the factory. The SDKs' own
// variables (AWS_ACCESS_KEY_ID, AWS_PROFILE, ...) also apply.
const (
	EnvS3AccessKey    = "SRBXFER_S3_ACCESS_KEY_ID"
	EnvS3SecretKey    = "SRBXFER_S3_SECRET_ACCESS_KEY"
	EnvAzureSASToken  = "AZURE_STORAGE_SAS_TOKEN"
	EnvAzureAccessKey = "AZURE_STORAGE_KEY"
)

// Factory creates remote stores from configuration.
type Factory struct {
	logger *logging.Logger
}

// NewFactory creates a new store factory.
func NewFactory(logger *logging.Logger) *Factory {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Factory{logger: logger}
}

// NewStore returns the store cfg.Backend names.
func (f *Factory) NewStore(ctx context.Context, cfg *config.Config) (remote.Store, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil

	case config.BackendLocalDir:
		if cfg.StoreRoot == "" {
			return nil, fmt.Errorf("store_root is required for the localdir backend")
		}
		return localdir.NewOS(cfg.StoreRoot)

	case config.BackendS3:
		httpClient, err := srbhttp.CreateClient(cfg, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
		}
		return s3.New(ctx, s3.Config{
			Bucket:            cfg.S3Bucket,
			Region:            cfg.S3Region,
			Endpoint:          cfg.S3Endpoint,
			PathStyle:         cfg.S3PathStyle,
			Prefix:            cfg.S3Prefix,
			AccessKeyID:       os.Getenv(EnvS3AccessKey),
			SecretAccessKey:   os.Getenv(EnvS3SecretKey),
			DisableSDKRetries: cfg.HTTPRetries > 0,
		}, httpClient, f.logger)

	case config.BackendAzure:
		httpClient, err := srbhttp.CreateClient(cfg, f.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
		}
		return azure.New(azure.Config{
			Account:           cfg.AzureAccount,
			Container:         cfg.AzureContainer,
			Endpoint:          cfg.AzureEndpoint,
			Prefix:            cfg.AzurePrefix,
			SASToken:          os.Getenv(EnvAzureSASToken),
			AccountKey:        os.Getenv(EnvAzureAccessKey),
			DisableSDKRetries: cfg.HTTPRetries > 0,
		}, httpClient, f.logger)

	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}
}
