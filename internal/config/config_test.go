package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDir_DefaultsToAppDir(t *testing.T) {
	os.Unsetenv("COWORK_DATA_DIR")
	os.Unsetenv("COWORK_CONFIG_PATH")
	reloadConfig()

	path := DataDir()

	home, _ := os.UserHomeDir()
	expected := filepath.Join(home, ".cowork")
	if path != expected {
		t.Errorf("DataDir() = %q, want %q", path, expected)
	}
}

func TestDataDir_EnvVarOverridesDefault(t *testing.T) {
	os.Setenv("COWORK_DATA_DIR", "/custom/path")
	defer os.Unsetenv("COWORK_DATA_DIR")

	path := DataDir()

	if path != "/custom/path" {
		t.Errorf("DataDir() = %q, want %q", path, "/custom/path")
	}
}

func TestDataDir_ConfigFileOverridesDefault(t *testing.T) {
	os.Unsetenv("COWORK_DATA_DIR")

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")
	configContent := `{"data_dir": "/from/config/dir"}`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("COWORK_CONFIG_PATH", configPath)
	defer os.Unsetenv("COWORK_CONFIG_PATH")
	reloadConfig()

	path := DataDir()
	if path != "/from/config/dir" {
		t.Errorf("DataDir() = %q, want %q", path, "/from/config/dir")
	}
}

func TestDataDir_EnvVarOverridesConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")
	configContent := `{"data_dir": "/from/config/dir"}`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatal(err)
	}

	os.Setenv("COWORK_CONFIG_PATH", configPath)
	os.Setenv("COWORK_DATA_DIR", "/from/env/dir")
	defer os.Unsetenv("COWORK_CONFIG_PATH")
	defer os.Unsetenv("COWORK_DATA_DIR")
	reloadConfig()

	path := DataDir()
	if path != "/from/env/dir" {
		t.Errorf("DataDir() = %q, want %q (env var should override config file)", path, "/from/env/dir")
	}
}

func TestLogPathAndStorePathDeriveFromDataDir(t *testing.T) {
	os.Setenv("COWORK_DATA_DIR", "/custom/path")
	defer os.Unsetenv("COWORK_DATA_DIR")

	if got, want := LogPath(), filepath.Join("/custom/path", "supervisor.log"); got != want {
		t.Errorf("LogPath() = %q, want %q", got, want)
	}
	if got, want := StorePath(), filepath.Join("/custom/path", "state.db"); got != want {
		t.Errorf("StorePath() = %q, want %q", got, want)
	}
}

func TestDebugLevel(t *testing.T) {
	cases := map[string]int{
		"":      LogError,
		"trace": LogTrace,
		"debug": LogDebug,
		"info":  LogInfo,
		"warn":  LogWarn,
		"1":     LogDebug,
		"true":  LogDebug,
	}
	for env, want := range cases {
		os.Setenv("COWORK_DEBUG", env)
		if got := DebugLevel(); got != want {
			t.Errorf("DebugLevel() with COWORK_DEBUG=%q = %v, want %v", env, got, want)
		}
	}
	os.Unsetenv("COWORK_DEBUG")
}
