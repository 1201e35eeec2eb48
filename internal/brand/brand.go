// Package brand provides centralized naming and filesystem defaults for speedctl.
//
// The identity is loaded from brand.json at compile time via go:embed so that
// packaging scripts can read the same file.
package brand

import (
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
)

//go:embed brand.json
var brandJSON []byte

// Brand holds all branding information
type Brand struct {
	Name              string `json:"name"`
	LowerName         string `json:"lowerName"`
	Vendor            string `json:"vendor"`
	Website           string `json:"website"`
	Repository        string `json:"repository"`
	Description       string `json:"description"`
	Tagline           string `json:"tagline"`
	ConfigEnvPrefix   string `json:"configEnvPrefix"`
	DefaultConfigDir  string `json:"defaultConfigDir"`
	DefaultStateDir   string `json:"defaultStateDir"`
	DefaultLogDir     string `json:"defaultLogDir"`
	DefaultRunDir     string `json:"defaultRunDir"`
	DefaultScriptsDir string `json:"defaultScriptsDir"`
	SocketName        string `json:"socketName"`
	BinaryName        string `json:"binaryName"`
	ServiceName       string `json:"serviceName"`
	ConfigFileName    string `json:"configFileName"`
	Copyright         string `json:"copyright"`
	License           string `json:"license"`
}

var b Brand

func init() {
	if err := json.Unmarshal(brandJSON, &b); err != nil {
		panic("failed to parse brand.json: " + err.Error())
	}

	Name = b.Name
	LowerName = b.LowerName
	Description = b.Description
	ConfigEnvPrefix = b.ConfigEnvPrefix
	DefaultConfigDir = b.DefaultConfigDir
	DefaultStateDir = b.DefaultStateDir
	DefaultLogDir = b.DefaultLogDir
	DefaultRunDir = b.DefaultRunDir
	DefaultScriptsDir = b.DefaultScriptsDir
	SocketName = b.SocketName
	BinaryName = b.BinaryName
	ConfigFileName = b.ConfigFileName
}

var (
	Name              string
	LowerName         string
	Description       string
	ConfigEnvPrefix   string
	DefaultConfigDir  string
	DefaultStateDir   string
	DefaultLogDir     string
	DefaultRunDir     string
	DefaultScriptsDir string
	SocketName        string
	BinaryName        string
	ConfigFileName    string

	// Version is set at build time via -ldflags
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Get returns the full Brand struct
func Get() Brand {
	return b
}

// UserAgent returns a User-Agent string for HTTP requests
func UserAgent(version string) string {
	if version == "" {
		version = "dev"
	}
	return Name + "/" + version
}

// dirFromEnv resolves a directory with the priority
// <PREFIX>_<KEY>_DIR > <PREFIX>_PREFIX/<sub> > fallback.
func dirFromEnv(key, sub, fallback string) string {
	if dir := os.Getenv(ConfigEnvPrefix + "_" + key + "_DIR"); dir != "" {
		return dir
	}
	if prefix := os.Getenv(ConfigEnvPrefix + "_PREFIX"); prefix != "" {
		return filepath.Join(prefix, sub)
	}
	return fallback
}

// GetStateDir returns the state directory (audit database lives here).
// Priority: SPEEDCTL_STATE_DIR > SPEEDCTL_PREFIX/state > DefaultStateDir
func GetStateDir() string {
	return dirFromEnv("STATE", "state", DefaultStateDir)
}

// GetLogDir returns the log directory.
func GetLogDir() string {
	return dirFromEnv("LOG", "log", DefaultLogDir)
}

// GetConfigDir returns the config directory.
func GetConfigDir() string {
	return dirFromEnv("CONFIG", "config", DefaultConfigDir)
}

// GetRunDir returns the runtime directory for sockets and PID files.
func GetRunDir() string {
	return dirFromEnv("RUN", "run", DefaultRunDir)
}

// GetScriptsDir returns the directory holding the measurement worker scripts.
// Exposed to HCL configs as the scripts_dir variable.
func GetScriptsDir() string {
	return dirFromEnv("SCRIPTS", "scripts", DefaultScriptsDir)
}

// GetSocketPath returns the full path to the control plane socket,
// e.g. /var/run/speedctl-ctl.sock
func GetSocketPath() string {
	return filepath.Join(GetRunDir(), LowerName+"-"+SocketName)
}

// DefaultConfigPath returns the config file path inside GetConfigDir.
func DefaultConfigPath() string {
	return filepath.Join(GetConfigDir(), ConfigFileName)
}
