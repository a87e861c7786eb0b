// Package config loads the server configuration: a yaml file with env
// overrides for the handful of knobs operators flip per deployment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/tierdrift/internal/game"
)

type Config struct {
	Server struct {
		Addr          string `yaml:"addr"`
		AllowedOrigin string `yaml:"allowed_origin"`
	} `yaml:"server"`

	// Per-phase deadline durations, in milliseconds.
	Phases struct {
		BuildMS   int `yaml:"build_ms"`
		PlaceMS   int `yaml:"place_ms"`
		VoteMS    int `yaml:"vote_ms"`
		ResultsMS int `yaml:"results_ms"`
		DriftMS   int `yaml:"drift_ms"`
	} `yaml:"phases"`

	Sessions struct {
		TTLMS         int    `yaml:"ttl_ms"`
		SweepMS       int    `yaml:"sweep_ms"`
		CodeLength    int    `yaml:"code_length"`
		CodeAlphabet  string `yaml:"code_alphabet"`
		LobbyCapacity int    `yaml:"lobby_capacity"`
		MaxNameLength int    `yaml:"max_name_length"`
	} `yaml:"sessions"`

	Debug struct {
		EnableControls bool `yaml:"enable_controls"`
	} `yaml:"debug"`
}

// Default returns the shipping configuration.
func Default() *Config {
	var c Config
	c.Server.Addr = ":3001"
	c.Server.AllowedOrigin = "http://localhost:5173"
	c.Phases.BuildMS = 5_000
	c.Phases.PlaceMS = 15_000
	c.Phases.VoteMS = 60_000
	c.Phases.ResultsMS = 3_000
	c.Phases.DriftMS = 1_000
	c.Sessions.TTLMS = int(time.Hour / time.Millisecond)
	c.Sessions.SweepMS = int(time.Hour / time.Millisecond)
	c.Sessions.CodeLength = 4
	c.Sessions.CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	c.Sessions.LobbyCapacity = 10
	c.Sessions.MaxNameLength = 18
	return &c
}

// Load reads the yaml file at path (missing file falls back to defaults) and
// applies env overrides on top.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	c.applyEnv()
	return c, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("ADDR", c.Server.Addr)
	if port := os.Getenv("PORT"); port != "" {
		c.Server.Addr = ":" + port
	}
	c.Server.AllowedOrigin = getEnv("CLIENT_ORIGIN", c.Server.AllowedOrigin)
	c.Sessions.TTLMS = getEnvAsInt("ROOM_TTL_MS", c.Sessions.TTLMS)
	c.Sessions.SweepMS = getEnvAsInt("CLEANUP_INTERVAL_MS", c.Sessions.SweepMS)
	if os.Getenv("ENABLE_DEBUG_CONTROLS") == "true" {
		c.Debug.EnableControls = true
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// Durations converts the phase settings into the state machine's form.
func (c *Config) Durations() game.Durations {
	return game.Durations{
		Build:   time.Duration(c.Phases.BuildMS) * time.Millisecond,
		Place:   time.Duration(c.Phases.PlaceMS) * time.Millisecond,
		Vote:    time.Duration(c.Phases.VoteMS) * time.Millisecond,
		Results: time.Duration(c.Phases.ResultsMS) * time.Millisecond,
		Drift:   time.Duration(c.Phases.DriftMS) * time.Millisecond,
	}
}

// TTL returns the session idle time-to-live.
func (c *Config) TTL() time.Duration {
	return time.Duration(c.Sessions.TTLMS) * time.Millisecond
}

// SweepInterval returns the janitor cadence.
func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.Sessions.SweepMS) * time.Millisecond
}
