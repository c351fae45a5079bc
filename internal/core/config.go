// Package core holds the configuration and logging shared by every part of
// the server.
package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config contains every option the server reads, populated from an optional
// yaml config file, environment variables, and command line flags (highest
// precedence).
type Config struct {
	// Address for the length-prefixed TCP listener. Empty disables it.
	TCPAddr string `mapstructure:"tcp_addr"`
	// Address for the WebSocket listener. Empty disables it.
	WSAddr string `mapstructure:"ws_addr"`
	// Full path to file to which logs will be written. Blank writes to stdout.
	LogFilePath string `mapstructure:"log_file_path"`
	// Minimum level of a log required to be written. Options: debug, info, warn, error
	LogLevel string `mapstructure:"log_level"`

	Game struct {
		// Turn cap; the game ends with a max_turns result when reached.
		// Negative means uncapped. Zero is valid and ends the game as soon
		// as both players have connected.
		MaxTurns int `mapstructure:"max_turns"`
		// Seconds an idle connection (or unfinished handshake) may persist.
		IdleTimeout int `mapstructure:"idle_timeout"`
		// Seconds a client has to complete the handshake message.
		HandshakeTimeout int `mapstructure:"handshake_timeout"`
		// Seconds a disconnected seat stays reserved mid-game before the
		// opponent wins by forfeit. Zero waits indefinitely.
		ReconnectGrace int `mapstructure:"reconnect_grace"`
	} `mapstructure:"game"`

	Protocol struct {
		// Upper bound on a single frame, guarding against untrusted lengths.
		MaxFrameBytes int `mapstructure:"max_frame_bytes"`
	} `mapstructure:"protocol"`

	Database struct {
		// "sqlite", "postgres", or blank to disable the result archive.
		Engine   string `mapstructure:"engine"`
		Filename string `mapstructure:"filename"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Name     string `mapstructure:"name"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		SSLMode  string `mapstructure:"sslmode"`
	} `mapstructure:"database"`

	Debugging struct {
		PprofEnabled bool `mapstructure:"pprof_enabled"`
		PprofPort    int  `mapstructure:"pprof_port"`
		// Dump every decoded message to the log.
		MessageLoggingEnabled bool `mapstructure:"message_logging_enabled"`
	} `mapstructure:"debugging"`
}

const envVarPrefix = "STERND"

// LoadConfig initializes viper from the config file under configPath (if
// any), environment variables, and the given flag set, and unmarshals the
// result.
func LoadConfig(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(configPath)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvPrefix(envVarPrefix)
	// Nested keys map to underscored names: game.max_turns -> STERND_GAME_MAX_TURNS.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log_level", "info")
	v.SetDefault("game.max_turns", -1)
	v.SetDefault("game.idle_timeout", 300)
	v.SetDefault("game.handshake_timeout", 10)
	v.SetDefault("game.reconnect_grace", 0)
	v.SetDefault("protocol.max_frame_bytes", 1<<20)
	v.SetDefault("debugging.pprof_port", 6060)

	if flags != nil {
		bindings := map[string]string{
			"tcp_addr":       "tcp",
			"ws_addr":        "ws",
			"game.max_turns": "max-turns",
			// The idle timeout doubles as the catch-all connection timeout
			// exposed on the command line.
			"game.idle_timeout": "timeout",
		}
		for key, flag := range bindings {
			if f := flags.Lookup(flag); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("binding flag %s: %w", flag, err)
				}
			}
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; flags and env carry the day.
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return config, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	if c.TCPAddr == "" && c.WSAddr == "" {
		return errors.New("at least one of --tcp or --ws is required")
	}
	if c.Protocol.MaxFrameBytes <= 0 {
		return errors.New("protocol.max_frame_bytes must be positive")
	}
	switch c.Database.Engine {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database engine %q", c.Database.Engine)
	}
	return nil
}

// IdleTimeout returns the per-connection idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Game.IdleTimeout) * time.Second
}

// HandshakeTimeout returns the handshake deadline.
func (c *Config) HandshakeTimeout() time.Duration {
	return time.Duration(c.Game.HandshakeTimeout) * time.Second
}

// ReconnectGrace returns the mid-game reconnection window; zero disables
// forfeits.
func (c *Config) ReconnectGrace() time.Duration {
	return time.Duration(c.Game.ReconnectGrace) * time.Second
}

const databaseURITemplate = "host=%s port=%d dbname=%s user=%s password=%s sslmode=%s"

// DatabaseURL returns the postgres DSN assembled from the config values.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		databaseURITemplate,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.Username,
		c.Database.Password,
		c.Database.SSLMode,
	)
}
