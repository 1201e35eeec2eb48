package config

import (
	"fmt"
	"net"
	"path/filepath"
	"strings"
	"time"

	"grimm.is/speedctl/internal/logging"
	"grimm.is/speedctl/internal/operation"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field    string
	Message  string
	Severity string // "error" (default), "warning"
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// HasErrors returns true if any entry is not a warning.
func (e ValidationErrors) HasErrors() bool {
	for _, err := range e {
		if err.Severity != "warning" {
			return true
		}
	}
	return false
}

// Warnings returns only the warning entries.
func (e ValidationErrors) Warnings() ValidationErrors {
	var out ValidationErrors
	for _, err := range e {
		if err.Severity == "warning" {
			out = append(out, err)
		}
	}
	return out
}

// Validate checks a config that has had defaults applied. Every operation in
// registry must resolve to an action whose parameter template matches the
// operation's arity.
func (c *Config) Validate(registry *operation.Registry) ValidationErrors {
	if registry == nil {
		registry = operation.Default()
	}

	var errs ValidationErrors
	errs = append(errs, c.validateAPI()...)
	errs = append(errs, c.validateControlPlane()...)
	errs = append(errs, c.validateLogging()...)
	errs = append(errs, c.validateAudit()...)
	errs = append(errs, c.validateActions(registry)...)
	return errs
}

func (c *Config) validateAPI() ValidationErrors {
	var errs ValidationErrors
	if c.API == nil {
		return errs
	}
	if _, _, err := net.SplitHostPort(c.API.Listen); err != nil {
		errs = append(errs, ValidationError{Field: "api.listen", Message: err.Error()})
	}
	if c.API.MaxBodyBytes < 0 {
		errs = append(errs, ValidationError{Field: "api.max_body_bytes", Message: "must be positive"})
	}
	if err := checkDuration(c.API.RateLimitInterval); err != nil {
		errs = append(errs, ValidationError{Field: "api.rate_limit_interval", Message: err.Error()})
	}
	if c.API.RateLimitRequests < 0 {
		errs = append(errs, ValidationError{Field: "api.rate_limit_requests", Message: "rate limiting disabled", Severity: "warning"})
	}
	return errs
}

func (c *Config) validateControlPlane() ValidationErrors {
	var errs ValidationErrors
	cp := c.ControlPlane
	if cp == nil {
		return errs
	}
	if !filepath.IsAbs(cp.Socket) {
		errs = append(errs, ValidationError{Field: "control_plane.socket", Message: fmt.Sprintf("%q must be an absolute path", cp.Socket)})
	}
	if err := checkDuration(cp.DefaultTimeout); err != nil {
		errs = append(errs, ValidationError{Field: "control_plane.default_timeout", Message: err.Error()})
	}
	if cp.MaxOutputBytes < 0 {
		errs = append(errs, ValidationError{Field: "control_plane.max_output_bytes", Message: "must be positive"})
	}
	return errs
}

func (c *Config) validateLogging() ValidationErrors {
	var errs ValidationErrors
	if c.Logging == nil {
		return errs
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, ValidationError{Field: "logging.level", Message: err.Error()})
	}
	if f := c.Logging.File; f != nil {
		if !filepath.IsAbs(f.Path) {
			errs = append(errs, ValidationError{Field: "logging.file.path", Message: fmt.Sprintf("%q must be an absolute path", f.Path)})
		}
		if f.MaxSizeMB < 0 || f.MaxBackups < 0 || f.MaxAgeDays < 0 {
			errs = append(errs, ValidationError{Field: "logging.file", Message: "rotation limits must not be negative"})
		}
	}
	if s := c.Logging.Syslog; s != nil && s.Enabled {
		if s.Host == "" {
			errs = append(errs, ValidationError{Field: "logging.syslog.host", Message: "required when syslog is enabled"})
		}
		if s.Protocol != "udp" && s.Protocol != "tcp" {
			errs = append(errs, ValidationError{Field: "logging.syslog.protocol", Message: fmt.Sprintf("unsupported protocol %q", s.Protocol)})
		}
		if s.Port < 1 || s.Port > 65535 {
			errs = append(errs, ValidationError{Field: "logging.syslog.port", Message: fmt.Sprintf("port %d out of range", s.Port)})
		}
		if s.Facility < 0 || s.Facility > 23 {
			errs = append(errs, ValidationError{Field: "logging.syslog.facility", Message: fmt.Sprintf("facility %d out of range (0-23)", s.Facility)})
		}
	}
	return errs
}

func (c *Config) validateAudit() ValidationErrors {
	var errs ValidationErrors
	if c.Audit == nil || !c.Audit.Enabled {
		return errs
	}
	if c.Audit.DatabasePath == "" {
		errs = append(errs, ValidationError{Field: "audit.path", Message: "required when audit is enabled"})
	}
	if c.Audit.RetentionDays < 0 {
		errs = append(errs, ValidationError{Field: "audit.retention_days", Message: "must not be negative"})
	}
	return errs
}

func (c *Config) validateActions(registry *operation.Registry) ValidationErrors {
	var errs ValidationErrors

	for _, a := range c.Actions {
		field := fmt.Sprintf("action[%q]", a.Name)
		if !filepath.IsAbs(a.Command) {
			errs = append(errs, ValidationError{Field: field + ".command", Message: fmt.Sprintf("%q must be an absolute path", a.Command)})
		}
		if a.Timeout != "" {
			if err := checkDuration(a.Timeout); err != nil {
				errs = append(errs, ValidationError{Field: field + ".timeout", Message: err.Error()})
			}
		}
	}

	for _, op := range registry.All() {
		a, ok := c.Action(op.Command)
		if !ok {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("action[%q]", op.Command),
				Message: fmt.Sprintf("no action defined for operation %s", op.Name),
			})
			continue
		}
		if n := Placeholders(a.Parameters); n != op.Arity() {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("action[%q].parameters", a.Name),
				Message: fmt.Sprintf("template has %d placeholder(s), operation %s takes %d", n, op.Name, op.Arity()),
			})
		}
	}
	return errs
}

// Placeholders counts the %s tokens in a parameter template.
func Placeholders(template string) int {
	n := 0
	for _, field := range strings.Fields(template) {
		n += strings.Count(field, "%s")
	}
	return n
}

func checkDuration(s string) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q", s)
	}
	if d <= 0 {
		return fmt.Errorf("duration %q must be positive", s)
	}
	return nil
}
