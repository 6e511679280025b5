package factory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reelscript/reelscript/internal/config"
)

func TestNewEphemeralRejectsUnknownDriver(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.EphemeralDriver = "memcached"

	_, err := NewEphemeral(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EPHEMERAL_DRIVER")
}

func TestNewEphemeralBadger(t *testing.T) {
	cfg := config.NewForTesting()
	cfg.EphemeralDriver = "badger"
	cfg.BadgerPath = t.TempDir()

	eph, err := NewEphemeral(context.Background(), cfg)
	require.NoError(t, err)
	require.NoError(t, eph.Close())
}
