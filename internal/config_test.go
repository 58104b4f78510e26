package internal

import (
	"testing"
	"time"

	"github.com/Netflix/go-env"
	"github.com/stretchr/testify/require"
)

func TestConfig_Defaults(t *testing.T) {
	req := require.New(t)

	// Given an empty environment
	var config Config

	// When unmarshalling
	err := env.Unmarshal(env.EnvSet{}, &config)

	// Then every setting has a usable default
	req.NoError(err)
	req.Equal("0.0.0.0:8080", config.Address())
	req.Equal("/ws", config.WSPath)
	req.Equal(30*time.Second, config.HeartbeatInterval)
	req.Equal(2*time.Minute, config.TombstoneTTL)
	req.Equal(int64(1048576), config.MaxPayloadBytes)
	req.Equal(256, config.DedupWindow)
	req.Equal(5*time.Second, config.MaxRestartInterval)
	req.Equal("*", config.CharReplacement)
	req.Empty(config.Words())
	req.NoError(config.Validate())
}

func TestConfig_Overrides(t *testing.T) {
	req := require.New(t)

	// Given an environment with overrides
	var config Config
	set := env.EnvSet{
		"PORT":               "9000",
		"HEARTBEAT_INTERVAL": "5s",
		"CENSORED_WORDS":     "darn, heck ,,",
	}

	// When unmarshalling
	err := env.Unmarshal(set, &config)

	// Then the overrides win
	req.NoError(err)
	req.Equal(9000, config.Port)
	req.Equal(5*time.Second, config.HeartbeatInterval)
	req.Equal([]string{"darn", "heck"}, config.Words())
}

func TestConfig_Validate(t *testing.T) {
	base := Config{Port: 8080, WSPath: "/ws", HeartbeatInterval: time.Second, StatsInterval: time.Second, WriteTimeout: time.Second, MaxPayloadBytes: 1}
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port", func(c *Config) { c.Port = 0 }},
		{"path", func(c *Config) { c.WSPath = "ws" }},
		{"heartbeat", func(c *Config) { c.HeartbeatInterval = 0 }},
		{"stats", func(c *Config) { c.StatsInterval = 0 }},
		{"write timeout", func(c *Config) { c.WriteTimeout = 0 }},
		{"payload", func(c *Config) { c.MaxPayloadBytes = 0 }},
		{"tombstone", func(c *Config) { c.TombstoneTTL = -time.Second }},
		{"dedup", func(c *Config) { c.DedupWindow = -1 }},
	}
	require.NoError(t, base.Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			require.Error(t, c.Validate())
		})
	}
}

func TestCharacterRune(t *testing.T) {
	req := require.New(t)

	r, err := CharacterRune("€")
	req.NoError(err)
	req.Equal('€', r)

	_, err = CharacterRune("**")
	req.Error(err)
}
