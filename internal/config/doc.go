// Package config handles HCL configuration parsing and validation.
//
// # Overview
//
// Speedctl reads a single HCL file (default /usr/local/etc/speedctl/speedctl.hcl).
// Every block is optional; anything left out falls back to [DefaultConfig].
//
// # Configuration Blocks
//
//   - api: HTTP listener, body limit and rate limiting for run/install operations
//   - control_plane: Unix socket path, command timeout and output cap
//   - logging: level, JSON output and optional remote syslog
//   - audit: SQLite invocation trail
//   - action: worker command definitions, keyed by command string
//
// # Variables
//
// Expressions can reference scripts_dir (the plugin script directory) and
// env.NAME (process environment):
//
//	action "speedtest run" {
//	  command    = "${scripts_dir}/opn_speedtest.py"
//	  parameters = "%s"
//	  timeout    = "5m"
//	}
//
// Each %s in parameters is replaced, in order, by one caller argument.
package config
