package config

import (
	"bytes"
	"embed"
	"io"
	"log/slog"
	"os"
	"strings"

	"ecash/core"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed params.yaml
var files embed.FS

// Params are the scheme parameters shared by the Bank and its Clients.
type Params struct {
	// Fanout is the number of candidates (K) a buyer submits per issuance.
	Fanout int `yaml:"fanout"`

	// Slots is the number of identity slots (N) embedded in every coin.
	Slots int `yaml:"slots"`

	// KeyBits is the length of the Bank's RSA modulus.
	KeyBits int `yaml:"key_bits"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the embedded default parameters.
func Default() Params {
	raw, err := files.ReadFile("params.yaml")
	if err != nil {
		panic(errors.Wrap(err, "read embedded params.yaml"))
	}

	var params Params
	if err := Load(&params, bytes.NewReader(raw)); err != nil {
		panic(errors.Wrap(err, "decode embedded params.yaml"))
	}

	return params
}

// Load decodes YAML from r over the values already present in params.
func Load(params *Params, r io.Reader) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(params); err != nil && err != io.EOF {
		return errors.Wrap(err, "decode params")
	}
	return nil
}

// LoadFile returns the defaults overlaid with the YAML file at path.
func LoadFile(path string) (Params, error) {
	params := Default()

	file, err := os.Open(path)
	if err != nil {
		slog.Error("failed to open params file", "path", path, "err", err)
		return Params{}, errors.Wrap(err, "open params file")
	}
	defer file.Close()

	if err := Load(&params, file); err != nil {
		return Params{}, err
	}

	return params, params.Validate()
}

// Validate checks that params describe a usable scheme.
func (params Params) Validate() error {
	switch {
	case params.Fanout < 2:
		return errors.Wrapf(core.ErrInvalidInput, "fanout must be at least 2, got %d", params.Fanout)
	case params.Slots < 1:
		return errors.Wrapf(core.ErrInvalidInput, "slots must be at least 1, got %d", params.Slots)
	case params.KeyBits < 1024:
		return errors.Wrapf(core.ErrInvalidInput, "key_bits must be at least 1024, got %d", params.KeyBits)
	}
	if _, err := ParseLevel(params.LogLevel); err != nil {
		return err
	}
	return nil
}

// ParseLevel maps a level name onto a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, errors.Wrapf(core.ErrInvalidInput, "unknown log level %q", name)
}
