package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3000", cfg.TCPAddr)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "points", cfg.Variant)
	assert.False(t, cfg.ReadyToggle)
	assert.True(t, cfg.ReshuffleTurnOrder)
	assert.False(t, cfg.Debug)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "4100")
	t.Setenv("HTTP_PORT", "4180")
	t.Setenv("GAME_VARIANT", "TURNS")
	t.Setenv("READY_TOGGLE", "true")
	t.Setenv("RESHUFFLE_TURN_ORDER", "false")
	t.Setenv("DEBUG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":4100", cfg.TCPAddr)
	assert.Equal(t, ":4180", cfg.HTTPAddr)
	assert.Equal(t, "turns", cfg.Variant)
	assert.True(t, cfg.ReadyToggle)
	assert.False(t, cfg.ReshuffleTurnOrder)
	assert.True(t, cfg.Debug)
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("PORT", "notaport")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PORT", "3000")
	t.Setenv("GAME_VARIANT", "chess")
	_, err = Load()
	assert.Error(t, err)
}
