package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ecash/config"
	"ecash/core"

	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	params := config.Default()
	require.Equal(t, 5, params.Fanout)
	require.Equal(t, 16, params.Slots)
	require.Equal(t, 2048, params.KeyBits)
	require.NoError(t, params.Validate())
}

func TestLoadOverlaysDefaults(t *testing.T) {
	params := config.Default()
	require.NoError(t, config.Load(&params, strings.NewReader("slots: 4\n")))
	require.Equal(t, 4, params.Slots)
	require.Equal(t, 5, params.Fanout)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	params := config.Default()
	require.Error(t, config.Load(&params, strings.NewReader("fan_out: 4\n")))
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fanout: 3\nkey_bits: 1024\nlog_level: debug\n"), 0o600))

	params, err := config.LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, 3, params.Fanout)
	require.Equal(t, 1024, params.KeyBits)
	require.Equal(t, "debug", params.LogLevel)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*config.Params){
		"fanout": func(p *config.Params) { p.Fanout = 1 },
		"slots":  func(p *config.Params) { p.Slots = 0 },
		"bits":   func(p *config.Params) { p.KeyBits = 512 },
		"level":  func(p *config.Params) { p.LogLevel = "loud" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			params := config.Default()
			mutate(&params)
			require.True(t, errors.Is(params.Validate(), core.ErrInvalidInput))
		})
	}
}

func TestParseLevel(t *testing.T) {
	level, err := config.ParseLevel("WARN")
	require.NoError(t, err)
	require.Equal(t, slog.LevelWarn, level)

	level, err = config.ParseLevel("")
	require.NoError(t, err)
	require.Equal(t, slog.LevelInfo, level)
}
