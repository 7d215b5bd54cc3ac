package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is everything the server reads from the environment. A .env file in
// the working directory is loaded first when present; real environment
// variables win over it.
type Config struct {
	// TCPAddr is the listen address for the raw socket protocol.
	TCPAddr string
	// HTTPAddr is the listen address for the HTTP/websocket surface.
	HTTPAddr string
	// Variant selects the session rules: "points" or "turns".
	Variant string
	// ReadyToggle makes a second ready-up during the ready check un-ready
	// the player instead of being a no-op.
	ReadyToggle bool
	// ReshuffleTurnOrder reshuffles the turn order at every session start
	// instead of keeping the first shuffle for the room's lifetime.
	ReshuffleTurnOrder bool
	// Debug switches the logger to development output.
	Debug bool
}

const (
	defaultTCPPort  = 3000
	defaultHTTPPort = 8080
)

// Load reads configuration from .env and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		TCPAddr:            fmt.Sprintf(":%d", defaultTCPPort),
		HTTPAddr:           fmt.Sprintf(":%d", defaultHTTPPort),
		Variant:            "points",
		ReshuffleTurnOrder: true,
	}

	if port, err := envPort("PORT"); err != nil {
		return nil, err
	} else if port != 0 {
		cfg.TCPAddr = fmt.Sprintf(":%d", port)
	}
	if port, err := envPort("HTTP_PORT"); err != nil {
		return nil, err
	} else if port != 0 {
		cfg.HTTPAddr = fmt.Sprintf(":%d", port)
	}

	if v := os.Getenv("GAME_VARIANT"); v != "" {
		v = strings.ToLower(v)
		if v != "points" && v != "turns" {
			return nil, fmt.Errorf("config: unknown GAME_VARIANT %q", v)
		}
		cfg.Variant = v
	}

	cfg.ReadyToggle = os.Getenv("READY_TOGGLE") == "true"
	if v := os.Getenv("RESHUFFLE_TURN_ORDER"); v != "" {
		cfg.ReshuffleTurnOrder = v == "true"
	}
	cfg.Debug = os.Getenv("DEBUG") == "true"
	return cfg, nil
}

func envPort(key string) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, nil
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port < 1 || port > 65535 {
		return 0, fmt.Errorf("config: invalid %s %q", key, raw)
	}
	return port, nil
}
