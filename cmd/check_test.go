package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speedctl.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0644))
	return path
}

func TestRunCheck_ValidConfig(t *testing.T) {
	t.Setenv("SPEEDCTL_PREFIX", t.TempDir())

	path := writeConfig(t, `
api {
  listen = "127.0.0.1:9090"
}

action "speedtest run" {
  command    = "/usr/local/bin/python3"
  parameters = "${scripts_dir}/opn_speedtest.py %s"
}
`)
	var out bytes.Buffer
	require.NoError(t, RunCheck(path, false, &out))

	assert.Contains(t, out.String(), "Configuration valid!")
	assert.Contains(t, out.String(), "127.0.0.1:9090")
	assert.Contains(t, out.String(), "Actions:        8")
}

func TestRunCheck_Verbose(t *testing.T) {
	t.Setenv("SPEEDCTL_PREFIX", t.TempDir())

	var out bytes.Buffer
	require.NoError(t, RunCheck(writeConfig(t, ""), true, &out))

	assert.Contains(t, out.String(), "speedtest install-socket")
	assert.Contains(t, out.String(), "opn_speedtest.py")
}

func TestRunCheck_Warnings(t *testing.T) {
	t.Setenv("SPEEDCTL_PREFIX", t.TempDir())

	path := writeConfig(t, `
api {
  rate_limit_requests = -1
}

action "reboot" {
  command = "/sbin/reboot"
}
`)
	var out bytes.Buffer
	require.NoError(t, RunCheck(path, false, &out))

	assert.Contains(t, out.String(), `action "reboot" is not reachable`)
	assert.Contains(t, out.String(), "rate limiting disabled")
}

func TestRunCheck_InvalidConfig(t *testing.T) {
	t.Setenv("SPEEDCTL_PREFIX", t.TempDir())

	tests := []struct {
		name string
		src  string
	}{
		{"syntax", "api {\n  # Missing closing brace\n"},
		{"arity", `
action "speedtest run" {
  command    = "/usr/bin/true"
  parameters = "run"
}
`},
		{"relative command", `
action "speedtest version" {
  command = "speedtest"
}
`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			assert.Error(t, RunCheck(writeConfig(t, tt.src), false, &out))
		})
	}
}

func TestRunCheck_MissingFile(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, RunCheck(filepath.Join(t.TempDir(), "nope.hcl"), false, &out))
	assert.Error(t, RunCheck("", false, &out))
}
