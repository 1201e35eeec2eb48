package brand

import (
	"path/filepath"
	"testing"
)

func TestGet(t *testing.T) {
	b := Get()
	if b.Name == "" {
		t.Error("Brand name should not be empty")
	}
	if Version == "" {
		t.Error("Global Version should be initialized (to dev default)")
	}
	if BinaryName != "speedctl" {
		t.Errorf("Expected binary name speedctl, got %s", BinaryName)
	}
}

func TestUserAgent(t *testing.T) {
	if ua := UserAgent("1.0.0"); ua != Name+"/1.0.0" {
		t.Errorf("Unexpected user agent %q", ua)
	}
	if ua := UserAgent(""); ua != Name+"/dev" {
		t.Errorf("Unexpected default user agent %q", ua)
	}
}

func TestGetDirectories(t *testing.T) {
	for _, key := range []string{"_PREFIX", "_CONFIG_DIR", "_STATE_DIR", "_LOG_DIR", "_RUN_DIR", "_SCRIPTS_DIR"} {
		t.Setenv(ConfigEnvPrefix+key, "")
	}

	if GetConfigDir() != DefaultConfigDir {
		t.Errorf("Expected default config dir %s, got %s", DefaultConfigDir, GetConfigDir())
	}
	if GetStateDir() != DefaultStateDir {
		t.Errorf("Expected default state dir %s, got %s", DefaultStateDir, GetStateDir())
	}
	if GetRunDir() != DefaultRunDir {
		t.Errorf("Expected default run dir %s, got %s", DefaultRunDir, GetRunDir())
	}
	if GetScriptsDir() != DefaultScriptsDir {
		t.Errorf("Expected default scripts dir %s, got %s", DefaultScriptsDir, GetScriptsDir())
	}

	t.Setenv(ConfigEnvPrefix+"_PREFIX", "/tmp/speedctl")
	if GetConfigDir() != "/tmp/speedctl/config" {
		t.Errorf("Expected prefix config dir, got %s", GetConfigDir())
	}
	if GetSocketPath() != filepath.Join("/tmp/speedctl/run", "speedctl-ctl.sock") {
		t.Errorf("Unexpected socket path %s", GetSocketPath())
	}

	t.Setenv(ConfigEnvPrefix+"_CONFIG_DIR", "/custom/config")
	if GetConfigDir() != "/custom/config" {
		t.Errorf("Expected custom config dir, got %s", GetConfigDir())
	}
	if DefaultConfigPath() != "/custom/config/speedctl.hcl" {
		t.Errorf("Unexpected config path %s", DefaultConfigPath())
	}
}
