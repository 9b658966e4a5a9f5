package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"landregistry/internal/platform/config"
	dErrors "landregistry/pkg/domain-errors"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Database.Driver = driver
	cfg.Database.SQLitePath = filepath.Join(t.TempDir(), "registry.db")
	return &cfg
}

func TestOpenBackends(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			b, err := openBackends(context.Background(), testConfig(t, driver), logger, nil)
			require.NoError(t, err)
			defer func() { require.NoError(t, b.Close()) }()

			assert.NotNil(t, b.users)
			assert.NotNil(t, b.approvals)
			assert.NotNil(t, b.revocations)
			assert.Nil(t, b.purgeable)

			admin, err := bootstrapAdmin(context.Background(), b, logger, "registrar", "Harbour-Lights-42", "ADM-0001", "")
			require.NoError(t, err)
			assert.Equal(t, "registrar", admin.Username)

			_, err = bootstrapAdmin(context.Background(), b, logger, "second", "Harbour-Lights-42", "ADM-0002", "")
			assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
		})
	}
}

func TestOpenBackendsRejectsUnknownDriver(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := openBackends(context.Background(), testConfig(t, "mongo"), logger, nil)
	require.ErrorContains(t, err, "unknown database driver")
}

func TestBoundTx(t *testing.T) {
	t.Run("cancelled context is a timeout", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, _, err := boundTx(ctx, 0)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	})

	t.Run("adds a deadline when missing", func(t *testing.T) {
		ctx, cancel, err := boundTx(context.Background(), time.Second)
		require.NoError(t, err)
		defer cancel()
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
	})

	t.Run("keeps an existing deadline", func(t *testing.T) {
		parent, cancelParent := context.WithTimeout(context.Background(), time.Minute)
		defer cancelParent()
		ctx, cancel, err := boundTx(parent, time.Second)
		require.NoError(t, err)
		defer cancel()
		want, _ := parent.Deadline()
		got, _ := ctx.Deadline()
		assert.Equal(t, want, got)
	})
}
