package providers

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/transana/srbxfer/internal/config"
	"github.com/transana/srbxfer/internal/remote"
)

func TestFactory_NewStore(t *testing.T) {
	ctx := context.Background()
	f := NewFactory(nil)

	cfg := config.Default()
	cfg.Backend = config.BackendMemory
	s, err := f.NewStore(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "memory", remote.StoreName(s))

	cfg.Backend = config.BackendLocalDir
	cfg.StoreRoot = t.TempDir()
	s, err = f.NewStore(ctx, cfg)
	require.NoError(t, err)
	assert.Contains(t, remote.StoreName(s), "localdir:")

	cfg.Backend = config.BackendAzure
	cfg.AzureAccount = "transana"
	cfg.AzureContainer = "media"
	s, err = f.NewStore(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, "azure:media", remote.StoreName(s))

	cfg.Backend = "gopher"
	_, err = f.NewStore(ctx, cfg)
	assert.True(t, errors.Is(err, config.ErrUnknownBackend))
}
