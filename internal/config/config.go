package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Addr        string
	DatabaseURL string

	TickInterval      time.Duration
	AcceptTimeout     time.Duration
	BroadcastCooldown time.Duration

	// Discord is optional; with no token the presence gate allows everyone.
	DiscordToken   string
	GuildID        string
	LobbyChannelID string

	Dev bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:              firstNonEmpty(os.Getenv("ADDR"), ":8080"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		TickInterval:      durationOr("MATCH_TICK_INTERVAL", 5*time.Second),
		AcceptTimeout:     durationOr("ACCEPT_TIMEOUT", 30*time.Second),
		BroadcastCooldown: durationOr("BROADCAST_COOLDOWN", time.Second),
		DiscordToken:      os.Getenv("DISCORD_BOT_TOKEN"),
		GuildID:           os.Getenv("DISCORD_GUILD_ID"),
		LobbyChannelID:    os.Getenv("LOBBY_CHANNEL_ID"),
		Dev:               os.Getenv("APP_ENV") == "dev",
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("missing DATABASE_URL")
	}
	if cfg.DiscordToken != "" && cfg.LobbyChannelID == "" {
		return nil, errors.New("DISCORD_BOT_TOKEN set but LOBBY_CHANNEL_ID missing")
	}
	return cfg, nil
}

func durationOr(key string, def time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func firstNonEmpty(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

func (c *Config) Redacted() string {
	db := "[set]"
	if c.DatabaseURL == "" {
		db = "[empty]"
	}
	discord := "[disabled]"
	if c.DiscordToken != "" {
		discord = "[enabled] lobbyChannel=" + c.LobbyChannelID
	}
	return fmt.Sprintf(
		"addr=%s db=%s tick=%s acceptTimeout=%s cooldown=%s discord=%s",
		c.Addr, db, c.TickInterval, c.AcceptTimeout, c.BroadcastCooldown, discord,
	)
}
