// Package config loads optional TOML settings for the feeder: overrides of
// the Binance WebSocket and REST endpoint URLs.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Config holds settings that rarely change between runs, so they live in a
// file rather than being passed as flags every time.
type Config struct {
	Binance BinanceConfig `toml:"binance"`
}

// BinanceConfig overrides the default Binance endpoints, mainly so tests
// and local development can point at a mock server.
type BinanceConfig struct {
	WSURL   string `toml:"ws_url"`
	RESTURL string `toml:"rest_url"`
}

// Load reads and parses a TOML config file. A missing file is not an
// error: the caller gets a zero-value Config and falls back to defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, err
	}

	var c Config
	if err := toml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
