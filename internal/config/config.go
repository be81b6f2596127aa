// Package config resolves the supervisor's data directory layout and
// debug level, with environment-variable overrides taking priority over
// a small JSON config file (ambient stack, following the teacher's
// config package).
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

var binaryName string

func init() {
	binaryName = filepath.Base(os.Args[0])
	loadConfig()
}

// BinaryName returns the name of the running binary.
func BinaryName() string {
	return binaryName
}

// SetBinaryName overrides the binary name (for testing).
func SetBinaryName(name string) {
	binaryName = name
}

// AppID is the application identifier used for the data directory name
// (~/.cowork) and the OS-keychain service name.
const AppID = "cowork"

// PriorAppID names the previous application id, used to locate legacy
// plaintext credential files during vault migration (§4.B).
const PriorAppID = "claude-cowork"

type configFile struct {
	DataDir string `json:"data_dir"`
}

var (
	loadedConfig configFile
	configMu     sync.RWMutex
)

func loadConfig() {
	configMu.Lock()
	defer configMu.Unlock()

	loadedConfig = configFile{}

	configPath := os.Getenv("COWORK_CONFIG_PATH")
	if configPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		configPath = filepath.Join(home, "."+AppID, "config.json")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return
	}
	_ = json.Unmarshal(data, &loadedConfig)
}

// reloadConfig re-reads the config file (for testing).
func reloadConfig() {
	loadConfig()
}

func appDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "/tmp/." + AppID
	}
	return filepath.Join(home, "."+AppID)
}

// DataDir returns the supervisor's per-user data directory.
// Priority: COWORK_DATA_DIR env var > config file > default (~/.cowork).
func DataDir() string {
	if envPath := os.Getenv("COWORK_DATA_DIR"); envPath != "" {
		return envPath
	}
	configMu.RLock()
	configured := loadedConfig.DataDir
	configMu.RUnlock()
	if configured != "" {
		return configured
	}
	return appDir()
}

// LogPath returns the supervisor's own log file path,
// <DataDir>/supervisor.log.
func LogPath() string {
	return filepath.Join(DataDir(), "supervisor.log")
}

// StorePath returns the sqlite-backed local state cache path.
func StorePath() string {
	return filepath.Join(DataDir(), "state.db")
}

// Log levels, ordered least to most verbose.
const (
	LogError = iota
	LogWarn
	LogInfo
	LogDebug
	LogTrace
)

// DebugLevel returns the log verbosity from the COWORK_DEBUG env var.
func DebugLevel() int {
	switch os.Getenv("COWORK_DEBUG") {
	case "trace":
		return LogTrace
	case "debug":
		return LogDebug
	case "info":
		return LogInfo
	case "warn":
		return LogWarn
	case "1", "true":
		return LogDebug
	default:
		return LogError
	}
}
