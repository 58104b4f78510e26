package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"
)

type Config struct {
	Host   string `env:"HOST,default=0.0.0.0"`
	Port   int    `env:"PORT,default=8080"`
	WSPath string `env:"WS_PATH,default=/ws"`
	AppEnv string `env:"APP_ENV,default=development"`

	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=30s"`
	TombstoneTTL      time.Duration `env:"TOMBSTONE_TTL,default=2m"`
	WriteTimeout      time.Duration `env:"WRITE_TIMEOUT,default=10s"`
	MaxPayloadBytes   int64         `env:"MAX_PAYLOAD_BYTES,default=1048576"`

	DedupWindow        int     `env:"DEDUP_WINDOW,default=256"`
	RateLimitPerSecond float64 `env:"RATE_LIMIT_PER_SECOND,default=20"`
	RateLimitBurst     int     `env:"RATE_LIMIT_BURST,default=40"`

	// Comma separated list, empty disables censoring.
	CensoredWords   string `env:"CENSORED_WORDS"`
	CharReplacement string `env:"CHARACTER_REPLACEMENT,default=*"`

	RestartInterval    time.Duration `env:"RESTART_INTERVAL,default=200ms"`
	MaxRestartInterval time.Duration `env:"MAX_RESTART_INTERVAL,default=5s"`
	StatsInterval      time.Duration `env:"STATS_INTERVAL,default=5s"`
	LogLevel           string        `env:"LOG_LEVEL,default=INFO"`
}

func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Words splits CensoredWords, dropping blanks.
func (c Config) Words() []string {
	words := lo.Map(strings.Split(c.CensoredWords, ","), func(w string, _ int) string {
		return strings.TrimSpace(w)
	})
	return lo.Compact(words)
}

// Validate rejects settings the server cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("PORT must be in 1..65535, got %d", c.Port)
	case !strings.HasPrefix(c.WSPath, "/"):
		return fmt.Errorf("WS_PATH must start with '/', got %q", c.WSPath)
	case c.HeartbeatInterval <= 0:
		return fmt.Errorf("HEARTBEAT_INTERVAL must be positive, got %s", c.HeartbeatInterval)
	case c.StatsInterval <= 0:
		return fmt.Errorf("STATS_INTERVAL must be positive, got %s", c.StatsInterval)
	case c.WriteTimeout <= 0:
		return fmt.Errorf("WRITE_TIMEOUT must be positive, got %s", c.WriteTimeout)
	case c.MaxPayloadBytes <= 0:
		return fmt.Errorf("MAX_PAYLOAD_BYTES must be positive, got %d", c.MaxPayloadBytes)
	case c.TombstoneTTL < 0:
		return fmt.Errorf("TOMBSTONE_TTL must not be negative, got %s", c.TombstoneTTL)
	case c.DedupWindow < 0:
		return fmt.Errorf("DEDUP_WINDOW must not be negative, got %d", c.DedupWindow)
	}
	return nil
}

func CharacterRune(str string) (rune, error) {
	r := []rune(str)
	if len(r) != 1 {
		return 0, fmt.Errorf(
			"CHARACTER_REPLACEMENT must be a single character, got %q",
			str,
		)
	}
	return r[0], nil
}
