package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default config locations
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")              // Current directory
		v.AddConfigPath("./configs")      // Project configs directory
		v.AddConfigPath("/etc/powerfold") // System-wide config
	}

	// Set defaults
	setDefaults(v)

	// Enable environment variable overrides
	v.SetEnvPrefix("POWERFOLD")
	v.AutomaticEnv()

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; use defaults
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Cluster defaults
	v.SetDefault("cluster.insecure_tls", true)
	v.SetDefault("cluster.http_timeout", "15s")

	// Network defaults
	v.SetDefault("network.probe_timeout", "60s")
	v.SetDefault("network.probe_interval", "5s")
	v.SetDefault("network.dial_timeout", "3s")

	// Power defaults
	v.SetDefault("power.nut_address", "localhost:3493")
	v.SetDefault("power.min_charge_pct", 80)
	v.SetDefault("power.poll_interval", "30s")

	// Wake defaults
	v.SetDefault("wake.broadcast_addr", "255.255.255.255:9")
	v.SetDefault("wake.boot_settle", "120s")

	// Shutdown defaults
	v.SetDefault("shutdown.api_timeout", "60s")
	v.SetDefault("shutdown.api_interval", "5s")
	v.SetDefault("shutdown.stop_settle", "2s")
	v.SetDefault("shutdown.drain_timeout", "300s")
	v.SetDefault("shutdown.drain_interval", "5s")
	v.SetDefault("shutdown.node_offline_timeout", "360s")
	v.SetDefault("shutdown.node_offline_interval", "5s")
	v.SetDefault("shutdown.release_lock_on_abort", false)

	// Startup defaults
	v.SetDefault("startup.lock_poll_interval", "10s")
	v.SetDefault("startup.lock_settle", "60s")
	v.SetDefault("startup.api_interval", "10s")
	v.SetDefault("startup.health_attempts", 20)
	v.SetDefault("startup.health_interval", "20s")
	v.SetDefault("startup.start_settle", "2s")

	// State defaults
	v.SetDefault("state.dir", "/var/lib/powerfold")
	v.SetDefault("state.snapshot_file", "workloads.json")
	v.SetDefault("state.lock_file", "shutdown.lock")

	// Notify defaults
	v.SetDefault("notify.channels", []string{"log"})
	v.SetDefault("notify.nats_subject", "powerfold.events")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_path", "stdout")
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Cluster: ClusterConfig{
			InsecureTLS: true,
			HTTPTimeout: 15 * time.Second,
		},
		Network: NetworkConfig{
			ProbeTimeout:  60 * time.Second,
			ProbeInterval: 5 * time.Second,
			DialTimeout:   3 * time.Second,
		},
		Power: PowerConfig{
			NUTAddress:   "localhost:3493",
			MinChargePct: 80,
			PollInterval: 30 * time.Second,
		},
		Wake: WakeConfig{
			BroadcastAddr: "255.255.255.255:9",
			BootSettle:    120 * time.Second,
		},
		Shutdown: ShutdownConfig{
			APITimeout:          60 * time.Second,
			APIInterval:         5 * time.Second,
			StopSettle:          2 * time.Second,
			DrainTimeout:        300 * time.Second,
			DrainInterval:       5 * time.Second,
			NodeOfflineTimeout:  360 * time.Second,
			NodeOfflineInterval: 5 * time.Second,
		},
		Startup: StartupConfig{
			LockPollInterval: 10 * time.Second,
			LockSettle:       60 * time.Second,
			APIInterval:      10 * time.Second,
			HealthAttempts:   20,
			HealthInterval:   20 * time.Second,
			StartSettle:      2 * time.Second,
		},
		State: StateConfig{
			Dir:          "/var/lib/powerfold",
			SnapshotFile: "workloads.json",
			LockFile:     "shutdown.lock",
		},
		Notify: NotifyConfig{
			Channels:    []string{"log"},
			NATSSubject: "powerfold.events",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
		},
	}
}
