package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	LogLevel   string        `mapstructure:"log_level"`
	StaticPath string        `mapstructure:"static_path"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	Signaling SignalingConfig `mapstructure:"signaling"`
	Media     MediaConfig     `mapstructure:"media"`
}

type SignalingConfig struct {
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	SendBuffer       int           `mapstructure:"send_buffer"`
	RateLimit        float64       `mapstructure:"rate_limit"`
	RateBurst        int           `mapstructure:"rate_burst"`
	// BackpressurePolicy is "drop" or "kick".
	BackpressurePolicy string `mapstructure:"backpressure_policy"`
}

type MediaConfig struct {
	ListenIP           string        `mapstructure:"listen_ip"`
	AnnouncedIP        string        `mapstructure:"announced_ip"`
	RTCMinPort         uint16        `mapstructure:"rtc_min_port"`
	RTCMaxPort         uint16        `mapstructure:"rtc_max_port"`
	TCPPort            int           `mapstructure:"tcp_port"`
	ICELite            bool          `mapstructure:"ice_lite"`
	ICEServers         []string      `mapstructure:"ice_servers"`
	GatherTimeout      time.Duration `mapstructure:"gather_timeout"`
	MaxIncomingBitrate uint32        `mapstructure:"max_incoming_bitrate"`
	Codecs             []CodecConfig `mapstructure:"codecs"`
}

type CodecConfig struct {
	Kind       string         `mapstructure:"kind"`
	MimeType   string         `mapstructure:"mime_type"`
	ClockRate  uint32         `mapstructure:"clock_rate"`
	Channels   uint16         `mapstructure:"channels"`
	Parameters map[string]any `mapstructure:"parameters"`
}

func DefaultCodecs() []CodecConfig {
	return []CodecConfig{
		{Kind: "audio", MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
		{Kind: "video", MimeType: "video/VP8", ClockRate: 90000, Parameters: map[string]any{"x-google-start-bitrate": 1000}},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8000)
	v.SetDefault("log_level", "info")
	v.SetDefault("static_path", "./web")
	v.SetDefault("read_limit", 65536)
	v.SetDefault("ping_period", "54s")

	v.SetDefault("signaling.operation_timeout", "10s")
	v.SetDefault("signaling.send_buffer", 32)
	v.SetDefault("signaling.rate_limit", 50)
	v.SetDefault("signaling.rate_burst", 100)
	v.SetDefault("signaling.backpressure_policy", "drop")

	v.SetDefault("media.listen_ip", "0.0.0.0")
	v.SetDefault("media.announced_ip", "127.0.0.1")
	v.SetDefault("media.rtc_min_port", 10000)
	v.SetDefault("media.rtc_max_port", 10100)
	v.SetDefault("media.tcp_port", 0)
	v.SetDefault("media.ice_lite", true)
	v.SetDefault("media.gather_timeout", "5s")
	v.SetDefault("media.max_incoming_bitrate", 1500000)
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.SetEnvPrefix("CAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if len(cfg.Media.Codecs) == 0 {
		cfg.Media.Codecs = DefaultCodecs()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("static", cfg.StaticPath).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Media.RTCMinPort > c.Media.RTCMaxPort {
		return fmt.Errorf("media.rtc_min_port %d above media.rtc_max_port %d", c.Media.RTCMinPort, c.Media.RTCMaxPort)
	}
	if c.Signaling.SendBuffer <= 0 {
		return fmt.Errorf("signaling.send_buffer must be positive, got %d", c.Signaling.SendBuffer)
	}
	for _, codec := range c.Media.Codecs {
		if codec.Kind != "audio" && codec.Kind != "video" {
			return fmt.Errorf("codec %s: unknown kind %q", codec.MimeType, codec.Kind)
		}
		if codec.ClockRate == 0 {
			return fmt.Errorf("codec %s: clock_rate is required", codec.MimeType)
		}
	}
	return nil
}
