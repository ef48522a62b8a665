package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Bots     BotsConfig     `yaml:"bots"`
	World    WorldConfig    `yaml:"world"`
	Observer ObserverConfig `yaml:"observer"`
	Actions  ActionsConfig  `yaml:"actions"`
	Logging  LoggingConfig  `yaml:"logging"`
	Data     DataConfig     `yaml:"data"`
	RPC      RPCConfig      `yaml:"rpc"`
	Voice    VoiceConfig    `yaml:"voice"`

	// ProfilesFile optionally adds or overrides personality profiles.
	ProfilesFile string `yaml:"profiles_file"`
}

type ServerConfig struct {
	Listen      string `yaml:"listen"`
	EnablePprof bool   `yaml:"enable_pprof"`
}

type BotsConfig struct {
	MaxConcurrentBots   int    `yaml:"max_concurrent_bots"`
	MaxActionsPerSecond int    `yaml:"max_actions_per_second"`
	ReconnectDelayMs    int    `yaml:"reconnect_delay_ms"`
	ConnectTimeoutMs    int    `yaml:"connect_timeout_ms"`
	DefaultHost         string `yaml:"default_host"`
	DefaultPort         int    `yaml:"default_port"`
	ProtocolVersion     string `yaml:"protocol_version"`
	DefaultAuth         string `yaml:"default_auth"`
}

type WorldConfig struct {
	GatewayURL string `yaml:"gateway_url"`
}

type ObserverConfig struct {
	StatePollIntervalMs int `yaml:"state_poll_interval_ms"`
}

type ActionsConfig struct {
	MoveTimeoutMs int     `yaml:"move_timeout_ms"`
	MoveTolerance float64 `yaml:"move_tolerance"`
	JumpHoldMs    int     `yaml:"jump_hold_ms"`
}

type DataConfig struct {
	Dir       string `yaml:"dir"`
	DisableDB bool   `yaml:"disable_db"`
}

type RPCConfig struct {
	HMACSecret string `yaml:"hmac_secret"`
}

type VoiceConfig struct {
	DiscordToken string `yaml:"discord_token"`
	TTSURL       string `yaml:"tts_url"`
	TTSAPIKey    string `yaml:"tts_api_key"`
	TTSVoice     string `yaml:"tts_voice"`
}

func Defaults() Config {
	return Config{
		Server: ServerConfig{Listen: ":8080"},
		Bots: BotsConfig{
			MaxConcurrentBots:   10,
			MaxActionsPerSecond: 5,
			ReconnectDelayMs:    3000,
			ConnectTimeoutMs:    30000,
			DefaultHost:         "localhost",
			DefaultPort:         25565,
			ProtocolVersion:     "1.21.1",
			DefaultAuth:         "offline",
		},
		World:    WorldConfig{GatewayURL: "ws://127.0.0.1:8081/v1/agent"},
		Observer: ObserverConfig{StatePollIntervalMs: 250},
		Actions: ActionsConfig{
			MoveTimeoutMs: 30000,
			MoveTolerance: 1,
			JumpHoldMs:    200,
		},
		Logging: LoggingConfig{MaxSizeMB: 100, MaxBackups: 5, MaxAgeDays: 14},
		Data:    DataConfig{Dir: "./data"},
	}
}

// Load reads a YAML config file. An empty path yields Defaults().
func Load(path string) (Config, error) {
	if strings.TrimSpace(path) == "" {
		return Defaults(), nil
	}
	var c Config
	raw, err := os.ReadFile(path)
	if err != nil {
		return c, err
	}
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return c, fmt.Errorf("%s: %w", path, err)
	}
	c.fillDefaults()
	return c, nil
}

// fillDefaults replaces zero values with the defaults.
func (c *Config) fillDefaults() {
	d := Defaults()
	setStr := func(v *string, def string) {
		if strings.TrimSpace(*v) == "" {
			*v = def
		}
	}
	setInt := func(v *int, def int) {
		if *v == 0 {
			*v = def
		}
	}
	setStr(&c.Server.Listen, d.Server.Listen)
	setInt(&c.Bots.MaxConcurrentBots, d.Bots.MaxConcurrentBots)
	setInt(&c.Bots.MaxActionsPerSecond, d.Bots.MaxActionsPerSecond)
	setInt(&c.Bots.ReconnectDelayMs, d.Bots.ReconnectDelayMs)
	setInt(&c.Bots.ConnectTimeoutMs, d.Bots.ConnectTimeoutMs)
	setStr(&c.Bots.DefaultHost, d.Bots.DefaultHost)
	setInt(&c.Bots.DefaultPort, d.Bots.DefaultPort)
	setStr(&c.Bots.ProtocolVersion, d.Bots.ProtocolVersion)
	setStr(&c.Bots.DefaultAuth, d.Bots.DefaultAuth)
	setStr(&c.World.GatewayURL, d.World.GatewayURL)
	setInt(&c.Observer.StatePollIntervalMs, d.Observer.StatePollIntervalMs)
	setInt(&c.Actions.MoveTimeoutMs, d.Actions.MoveTimeoutMs)
	setInt(&c.Actions.JumpHoldMs, d.Actions.JumpHoldMs)
	if c.Actions.MoveTolerance == 0 {
		c.Actions.MoveTolerance = d.Actions.MoveTolerance
	}
	setInt(&c.Logging.MaxSizeMB, d.Logging.MaxSizeMB)
	setInt(&c.Logging.MaxBackups, d.Logging.MaxBackups)
	setInt(&c.Logging.MaxAgeDays, d.Logging.MaxAgeDays)
	setStr(&c.Data.Dir, d.Data.Dir)
}

// ApplyEnv overlays secrets and toggles from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("AA_RPC_HMAC_SECRET")); v != "" {
		c.RPC.HMACSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("AA_DISCORD_TOKEN")); v != "" {
		c.Voice.DiscordToken = v
	}
	if v := strings.TrimSpace(os.Getenv("AA_TTS_API_KEY")); v != "" {
		c.Voice.TTSAPIKey = v
	}
	c.Server.EnablePprof = EnvBool("AA_ENABLE_PPROF_HTTP", c.Server.EnablePprof)
}

func (c Config) Validate() error {
	var errs []error
	if c.Bots.MaxConcurrentBots <= 0 {
		errs = append(errs, fmt.Errorf("bots.max_concurrent_bots must be > 0"))
	}
	if c.Bots.MaxActionsPerSecond <= 0 {
		errs = append(errs, fmt.Errorf("bots.max_actions_per_second must be > 0"))
	}
	if c.Bots.ConnectTimeoutMs <= 0 {
		errs = append(errs, fmt.Errorf("bots.connect_timeout_ms must be > 0"))
	}
	if c.Bots.DefaultPort <= 0 || c.Bots.DefaultPort > 65535 {
		errs = append(errs, fmt.Errorf("bots.default_port out of range: %d", c.Bots.DefaultPort))
	}
	if c.Observer.StatePollIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("observer.state_poll_interval_ms must be > 0"))
	}
	if c.Actions.MoveTimeoutMs <= 0 || c.Actions.JumpHoldMs <= 0 || c.Actions.MoveTolerance <= 0 {
		errs = append(errs, fmt.Errorf("actions timings must be > 0"))
	}
	return errors.Join(errs...)
}

func (b BotsConfig) ConnectTimeout() time.Duration {
	return time.Duration(b.ConnectTimeoutMs) * time.Millisecond
}

func (o ObserverConfig) PollInterval() time.Duration {
	return time.Duration(o.StatePollIntervalMs) * time.Millisecond
}

func (a ActionsConfig) MoveTimeout() time.Duration {
	return time.Duration(a.MoveTimeoutMs) * time.Millisecond
}

func (a ActionsConfig) JumpHold() time.Duration {
	return time.Duration(a.JumpHoldMs) * time.Millisecond
}

func EnvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
