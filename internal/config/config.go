package config

import (
	"fmt"
	"net"
	"time"
)

// Config represents the complete application configuration.
// It is constructed once at startup and passed by reference into every
// component; nothing reads ambient global state.
type Config struct {
	Cluster  ClusterConfig  `mapstructure:"cluster"`
	Network  NetworkConfig  `mapstructure:"network"`
	Power    PowerConfig    `mapstructure:"power"`
	Wake     WakeConfig     `mapstructure:"wake"`
	Shutdown ShutdownConfig `mapstructure:"shutdown"`
	Startup  StartupConfig  `mapstructure:"startup"`
	State    StateConfig    `mapstructure:"state"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ClusterConfig represents the hypervisor cluster API endpoint
type ClusterConfig struct {
	APIURL       string        `mapstructure:"api_url"`       // Base URL, e.g. https://pve1.internal:8006/api2/json
	TokenID      string        `mapstructure:"token_id"`      // API token identifier (user@realm!tokenname)
	TokenSecret  string        `mapstructure:"token_secret"`  // API token secret
	InsecureTLS  bool          `mapstructure:"insecure_tls"`  // Skip certificate validation (private management network)
	HTTPTimeout  time.Duration `mapstructure:"http_timeout"`  // Per-request timeout
	ExcludeNodes []string      `mapstructure:"exclude_nodes"` // Nodes never powered down (e.g. the UPS monitoring host)
}

// NetworkConfig represents reachability probing
type NetworkConfig struct {
	ProbeTargets  []string          `mapstructure:"probe_targets"`  // host:port addresses that must answer before any workflow proceeds
	NodeAddrs     map[string]string `mapstructure:"node_addrs"`     // node name -> host:port used to confirm a node went offline
	ProbeTimeout  time.Duration     `mapstructure:"probe_timeout"`  // Budget per target
	ProbeInterval time.Duration     `mapstructure:"probe_interval"` // Poll interval per target
	DialTimeout   time.Duration     `mapstructure:"dial_timeout"`   // Single connection attempt budget
}

// PowerConfig represents the UPS status source
type PowerConfig struct {
	NUTAddress   string        `mapstructure:"nut_address"`    // NUT daemon address, host:port
	UPSName      string        `mapstructure:"ups_name"`       // Configured power source identifier
	MinChargePct int           `mapstructure:"min_charge_pct"` // Startup proceeds only at or above this charge
	PollInterval time.Duration `mapstructure:"poll_interval"`  // Charge re-read interval
}

// WakeConfig represents wake-on-LAN settings
type WakeConfig struct {
	Nodes         map[string]string `mapstructure:"nodes"`          // node name -> MAC address
	BroadcastAddr string            `mapstructure:"broadcast_addr"` // UDP broadcast target, host:port
	BootSettle    time.Duration     `mapstructure:"boot_settle"`    // Fixed delay after wake signals before probing the API
}

// ShutdownConfig represents shutdown workflow budgets
type ShutdownConfig struct {
	APITimeout          time.Duration `mapstructure:"api_timeout"` // Bounded API reachability budget
	APIInterval         time.Duration `mapstructure:"api_interval"`
	StopSettle          time.Duration `mapstructure:"stop_settle"`   // Delay after each guest stop request
	DrainTimeout        time.Duration `mapstructure:"drain_timeout"` // Cluster-wide running count -> 0
	DrainInterval       time.Duration `mapstructure:"drain_interval"`
	NodeOfflineTimeout  time.Duration `mapstructure:"node_offline_timeout"` // Per-node wait for power-off
	NodeOfflineInterval time.Duration `mapstructure:"node_offline_interval"`
	ReleaseLockOnAbort  bool          `mapstructure:"release_lock_on_abort"` // False keeps the lock after an aborted shutdown, forcing operator review
}

// StartupConfig represents startup workflow budgets
type StartupConfig struct {
	LockPollInterval time.Duration `mapstructure:"lock_poll_interval"` // Re-check interval while a shutdown holds the lock
	LockSettle       time.Duration `mapstructure:"lock_settle"`        // Extra delay after the lock clears
	APIInterval      time.Duration `mapstructure:"api_interval"`       // Unbounded API poll interval post-wake
	HealthAttempts   int           `mapstructure:"health_attempts"`    // Bounded cluster health poll
	HealthInterval   time.Duration `mapstructure:"health_interval"`
	StartSettle      time.Duration `mapstructure:"start_settle"`       // Delay after each guest start request
}

// StateConfig represents durable state locations
type StateConfig struct {
	Dir          string `mapstructure:"dir"`           // Directory for snapshot and lock files
	SnapshotFile string `mapstructure:"snapshot_file"` // Workload snapshot file name
	LockFile     string `mapstructure:"lock_file"`     // Shutdown lock marker file name
}

// NotifyConfig represents notification delivery
type NotifyConfig struct {
	Channels    []string `mapstructure:"channels"`     // Any of: log, nats, mail, wall
	NATSURL     string   `mapstructure:"nats_url"`     // NATS server URL
	NATSSubject string   `mapstructure:"nats_subject"` // Subject for workflow events
	SMTPAddress string   `mapstructure:"smtp_address"` // SMTP relay, host:port
	MailFrom    string   `mapstructure:"mail_from"`
	MailTo      []string `mapstructure:"mail_to"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json or console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	TimeFormat string `mapstructure:"time_format"` // Console time format
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	if err := c.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster config: %w", err)
	}

	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("network config: %w", err)
	}

	if err := c.Power.Validate(); err != nil {
		return fmt.Errorf("power config: %w", err)
	}

	if err := c.Wake.Validate(); err != nil {
		return fmt.Errorf("wake config: %w", err)
	}

	if err := c.Notify.Validate(); err != nil {
		return fmt.Errorf("notify config: %w", err)
	}

	return nil
}

// Validate validates cluster API configuration
func (c *ClusterConfig) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api_url is required")
	}

	if c.TokenID == "" || c.TokenSecret == "" {
		return fmt.Errorf("token_id and token_secret are required")
	}

	return nil
}

// Validate validates network probe configuration
func (c *NetworkConfig) Validate() error {
	for _, target := range c.ProbeTargets {
		if _, _, err := net.SplitHostPort(target); err != nil {
			return fmt.Errorf("invalid probe target %q: %w", target, err)
		}
	}

	return nil
}

// Validate validates power source configuration
func (c *PowerConfig) Validate() error {
	if c.MinChargePct < 0 || c.MinChargePct > 100 {
		return fmt.Errorf("min_charge_pct must be 0-100, got %d", c.MinChargePct)
	}

	return nil
}

// Validate validates wake-on-LAN configuration
func (c *WakeConfig) Validate() error {
	for node, mac := range c.Nodes {
		if _, err := net.ParseMAC(mac); err != nil {
			return fmt.Errorf("invalid MAC %q for node %s: %w", mac, node, err)
		}
	}

	return nil
}

// Validate validates notification configuration
func (c *NotifyConfig) Validate() error {
	for _, ch := range c.Channels {
		switch ch {
		case "log", "nats", "mail", "wall":
		default:
			return fmt.Errorf("unsupported notify channel: %s (supported: log, nats, mail, wall)", ch)
		}
	}

	return nil
}
