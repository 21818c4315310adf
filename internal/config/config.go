// internal/config/config.go
// Centralised loader for hyphagw's recognized configuration keys: defaults ->
// config file -> environment variables -> flags, all merged through a single
// viper.Viper instance (cmd/hyphagw binds cobra flags onto the same Viper
// before Load runs).
package config

import (
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// ClusterOptions mirrors the `cluster_options.*` config keys.
type ClusterOptions struct {
	HeartbeatIntervalS int `mapstructure:"heartbeat_interval_s"`
	CleanupIntervalS   int `mapstructure:"cleanup_interval_s"`
	ServerTTLS         int `mapstructure:"server_ttl_s"`
}

// Config is the fully-resolved set of recognized keys.
type Config struct {
	URL  string `mapstructure:"url"`
	Port int    `mapstructure:"port"`

	JWTSecret string `mapstructure:"jwt_secret"`

	Clustered      bool   `mapstructure:"clustered"`
	ServerID       string `mapstructure:"server_id"`
	RedisAddr      string `mapstructure:"redis_addr"`
	ClusterOptions ClusterOptions `mapstructure:"cluster_options"`

	MethodTimeoutS int `mapstructure:"method_timeout_s"`

	LogJSON bool `mapstructure:"log_json"`

	// ControlPlaneAddr, when non-empty, starts the optional gRPC control
	// plane (internal/controlplane) on this host:port; empty disables it.
	ControlPlaneAddr string `mapstructure:"control_plane_addr"`
}

// Defaults returns the built-in default values.
func Defaults() Config {
	return Config{
		Port:           9527,
		MethodTimeoutS: 60,
		ClusterOptions: ClusterOptions{
			HeartbeatIntervalS: 30,
			CleanupIntervalS:   60,
			ServerTTLS:         90,
		},
	}
}

// Load merges defaults -> config file (if set) -> env vars (HYPHA_ prefix)
// -> flags already bound on v, and returns the resolved Config.
func Load(v *viper.Viper, cfgFile string) (Config, error) {
	cfg := Defaults()

	v.SetEnvPrefix("HYPHA")
	v.AutomaticEnv()

	setDefaults(v, cfg)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper, cfg Config) {
	v.SetDefault("port", cfg.Port)
	v.SetDefault("method_timeout_s", cfg.MethodTimeoutS)
	v.SetDefault("cluster_options.heartbeat_interval_s", cfg.ClusterOptions.HeartbeatIntervalS)
	v.SetDefault("cluster_options.cleanup_interval_s", cfg.ClusterOptions.CleanupIntervalS)
	v.SetDefault("cluster_options.server_ttl_s", cfg.ClusterOptions.ServerTTLS)
}

// MethodTimeout converts MethodTimeoutS to a time.Duration.
func (c Config) MethodTimeout() time.Duration {
	return time.Duration(c.MethodTimeoutS) * time.Second
}

// HeartbeatInterval converts cluster_options.heartbeat_interval_s.
func (c Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.ClusterOptions.HeartbeatIntervalS) * time.Second
}

// CleanupInterval converts cluster_options.cleanup_interval_s.
func (c Config) CleanupInterval() time.Duration {
	return time.Duration(c.ClusterOptions.CleanupIntervalS) * time.Second
}

// ServerTTL converts cluster_options.server_ttl_s.
func (c Config) ServerTTL() time.Duration {
	return time.Duration(c.ClusterOptions.ServerTTLS) * time.Second
}

// Addr resolves the mutually-exclusive `url`/`port` keys into a bindable
// host:port.
func (c Config) Addr() string {
	if c.URL != "" {
		return stripScheme(c.URL)
	}
	return ":" + strconv.Itoa(c.Port)
}

func stripScheme(url string) string {
	for i := 0; i+2 < len(url); i++ {
		if url[i] == ':' && url[i+1] == '/' && url[i+2] == '/' {
			return url[i+3:]
		}
	}
	return url
}
