package config

import (
	"path/filepath"
	"sort"
	"time"

	"grimm.is/speedctl/internal/brand"
)

// CurrentSchemaVersion defines the current schema version of the configuration.
const CurrentSchemaVersion = "1.0"

// Defaults applied when a block or attribute is omitted.
const (
	DefaultListen             = "127.0.0.1:8086"
	DefaultRateLimitRequests  = 6
	DefaultRateLimitInterval  = "1m"
	DefaultMaxBodyBytes       = 64 << 10
	DefaultCommandTimeout     = "2m"
	DefaultMaxOutputBytes     = 4 << 20
	DefaultAuditRetentionDays = 90
	DefaultLogLevel           = "info"
	DefaultLogFileMaxSizeMB   = 10
)

// Config is the top-level structure for the speedctl configuration.
type Config struct {
	// Schema version for backward compatibility. Empty means "1.0".
	SchemaVersion string `hcl:"schema_version,optional" json:"schema_version,omitempty"`

	API          *APIConfig          `hcl:"api,block" json:"api,omitempty"`
	ControlPlane *ControlPlaneConfig `hcl:"control_plane,block" json:"control_plane,omitempty"`
	Logging      *LoggingConfig      `hcl:"logging,block" json:"logging,omitempty"`
	Audit        *AuditConfig        `hcl:"audit,block" json:"audit,omitempty"`
	Actions      []ActionConfig      `hcl:"action,block" json:"actions,omitempty"`
}

// APIConfig configures the unprivileged HTTP server.
type APIConfig struct {
	Listen       string `hcl:"listen,optional" json:"listen,omitempty"`
	MaxBodyBytes int64  `hcl:"max_body_bytes,optional" json:"max_body_bytes,omitempty"`

	// Per-client limit for run and install operations. Zero uses the default,
	// a negative value disables limiting.
	RateLimitRequests int    `hcl:"rate_limit_requests,optional" json:"rate_limit_requests,omitempty"`
	RateLimitInterval string `hcl:"rate_limit_interval,optional" json:"rate_limit_interval,omitempty"`
}

// ControlPlaneConfig configures the privileged worker side.
type ControlPlaneConfig struct {
	Socket         string `hcl:"socket,optional" json:"socket,omitempty"`
	DefaultTimeout string `hcl:"default_timeout,optional" json:"default_timeout,omitempty"`
	MaxOutputBytes int    `hcl:"max_output_bytes,optional" json:"max_output_bytes,omitempty"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string         `hcl:"level,optional" json:"level,omitempty"`
	JSON   bool           `hcl:"json,optional" json:"json,omitempty"`
	File   *LogFileConfig `hcl:"file,block" json:"file,omitempty"`
	Syslog *SyslogConfig  `hcl:"syslog,block" json:"syslog,omitempty"`
}

// LogFileConfig configures a size-rotated log file alongside stderr.
type LogFileConfig struct {
	Path       string `hcl:"path" json:"path"`
	MaxSizeMB  int    `hcl:"max_size_mb,optional" json:"max_size_mb,omitempty"` // Default: 10
	MaxBackups int    `hcl:"max_backups,optional" json:"max_backups,omitempty"`
	MaxAgeDays int    `hcl:"max_age_days,optional" json:"max_age_days,omitempty"`
}

// SyslogConfig configures remote syslog forwarding.
type SyslogConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled"`
	Host     string `hcl:"host" json:"host"`
	Port     int    `hcl:"port,optional" json:"port,omitempty"`         // Default: 514
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty"` // udp or tcp
	Tag      string `hcl:"tag,optional" json:"tag,omitempty"`
	Facility int    `hcl:"facility,optional" json:"facility,omitempty"`
}

// AuditConfig configures the invocation audit trail.
type AuditConfig struct {
	// Enabled activates audit logging to SQLite.
	Enabled bool `hcl:"enabled,optional" json:"enabled"`

	// DatabasePath overrides the default audit database location.
	DatabasePath string `hcl:"path,optional" json:"path,omitempty"`

	// RetentionDays is the number of days to retain audit rows.
	// Default: 90 days.
	RetentionDays int `hcl:"retention_days,optional" json:"retention_days,omitempty"`

	// Log writes invocations to the process log when Enabled is false.
	Log bool `hcl:"log,optional" json:"log,omitempty"`
}

// ActionConfig maps a worker command string onto an executable.
type ActionConfig struct {
	Name        string `hcl:"name,label" json:"name"`
	Command     string `hcl:"command" json:"command"`
	Parameters  string `hcl:"parameters,optional" json:"parameters,omitempty"`
	Timeout     string `hcl:"timeout,optional" json:"timeout,omitempty"`
	Description string `hcl:"description,optional" json:"description,omitempty"`
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	cfg := &Config{SchemaVersion: CurrentSchemaVersion}
	cfg.ApplyDefaults()
	return cfg
}

// DefaultActions returns the stock speedtest action table.
func DefaultActions(scriptsDir string) []ActionConfig {
	script := filepath.Join(scriptsDir, "opn_speedtest.py")
	return []ActionConfig{
		{Name: "speedtest version", Command: script, Parameters: "v", Description: "Show speedtest version"},
		{Name: "speedtest serverlist", Command: script, Parameters: "t", Description: "List speedtest servers"},
		{Name: "speedtest run", Command: script, Parameters: "%s", Timeout: "5m", Description: "Run speedtest"},
		{Name: "speedtest showstat", Command: script, Parameters: "s", Description: "Show speedtest statistics"},
		{Name: "speedtest showlog", Command: script, Parameters: "l", Description: "Show speedtest log"},
		{Name: "speedtest deletelog", Command: "/bin/rm", Parameters: "-f " + filepath.Join(scriptsDir, "speedtest.csv"), Description: "Delete speedtest log"},
		{Name: "speedtest install-http", Command: "/usr/sbin/pkg", Parameters: "install -y py-speedtest-cli", Timeout: "10m", Description: "Install speedtest-cli"},
		{Name: "speedtest install-socket", Command: "/usr/sbin/pkg", Parameters: "add -f " + OoklaPackageURL, Timeout: "10m", Description: "Install Ookla speedtest"},
	}
}

// OoklaPackageURL is the FreeBSD package for the socket-based client.
const OoklaPackageURL = "https://install.speedtest.net/app/cli/ookla-speedtest-1.2.0-freebsd13-x86_64.pkg"

// ApplyDefaults fills omitted blocks and attributes. Configured actions
// replace the default action of the same name.
func (c *Config) ApplyDefaults() {
	if c.SchemaVersion == "" {
		c.SchemaVersion = CurrentSchemaVersion
	}

	if c.API == nil {
		c.API = &APIConfig{}
	}
	if c.API.Listen == "" {
		c.API.Listen = DefaultListen
	}
	if c.API.MaxBodyBytes == 0 {
		c.API.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.API.RateLimitRequests == 0 {
		c.API.RateLimitRequests = DefaultRateLimitRequests
	}
	if c.API.RateLimitInterval == "" {
		c.API.RateLimitInterval = DefaultRateLimitInterval
	}

	if c.ControlPlane == nil {
		c.ControlPlane = &ControlPlaneConfig{}
	}
	if c.ControlPlane.Socket == "" {
		c.ControlPlane.Socket = brand.GetSocketPath()
	}
	if c.ControlPlane.DefaultTimeout == "" {
		c.ControlPlane.DefaultTimeout = DefaultCommandTimeout
	}
	if c.ControlPlane.MaxOutputBytes == 0 {
		c.ControlPlane.MaxOutputBytes = DefaultMaxOutputBytes
	}

	if c.Logging == nil {
		c.Logging = &LoggingConfig{}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if f := c.Logging.File; f != nil && f.MaxSizeMB == 0 {
		f.MaxSizeMB = DefaultLogFileMaxSizeMB
	}
	if s := c.Logging.Syslog; s != nil {
		if s.Port == 0 {
			s.Port = 514
		}
		if s.Protocol == "" {
			s.Protocol = "udp"
		}
		if s.Tag == "" {
			s.Tag = brand.LowerName
		}
	}

	if c.Audit == nil {
		c.Audit = &AuditConfig{}
	}
	if c.Audit.DatabasePath == "" {
		c.Audit.DatabasePath = filepath.Join(brand.GetStateDir(), "audit.db")
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = DefaultAuditRetentionDays
	}

	c.Actions = mergeActions(DefaultActions(brand.GetScriptsDir()), c.Actions)
}

func mergeActions(defaults, configured []ActionConfig) []ActionConfig {
	byName := make(map[string]ActionConfig, len(defaults)+len(configured))
	for _, a := range defaults {
		byName[a.Name] = a
	}
	for _, a := range configured {
		byName[a.Name] = a
	}
	merged := make([]ActionConfig, 0, len(byName))
	for _, a := range byName {
		merged = append(merged, a)
	}
	sort.Slice(merged, func(i, j int) bool { return merged[i].Name < merged[j].Name })
	return merged
}

// Action returns the action configured for command.
func (c *Config) Action(command string) (ActionConfig, bool) {
	for _, a := range c.Actions {
		if a.Name == command {
			return a, true
		}
	}
	return ActionConfig{}, false
}

// RateLimitWindow returns the parsed api.rate_limit_interval.
func (a *APIConfig) RateLimitWindow() time.Duration {
	return parseDurationOr(a.RateLimitInterval, time.Minute)
}

// CommandTimeout returns the parsed control_plane.default_timeout.
func (cp *ControlPlaneConfig) CommandTimeout() time.Duration {
	return parseDurationOr(cp.DefaultTimeout, 2*time.Minute)
}

// TimeoutOr returns the action's timeout, or fallback when none is set.
func (a ActionConfig) TimeoutOr(fallback time.Duration) time.Duration {
	return parseDurationOr(a.Timeout, fallback)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
