package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	// Create a test config file
	configContent := `
version: "1.0"
server:
  listen_addr: ":9090"
capture:
  recordings_root: "/var/lib/meetscribe/recordings"
  default_bot_name: "Minutes Bot"
  ffmpeg_path: "/usr/local/bin/ffmpeg"
browser:
  headless: true
  width: 1280
  height: 720
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Version != "1.0" {
		t.Errorf("Expected version '1.0', got '%s'", cfg.Version)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("Expected listen_addr ':9090', got '%s'", cfg.Server.ListenAddr)
	}

	if cfg.Capture.DefaultBotName != "Minutes Bot" {
		t.Errorf("Expected bot name 'Minutes Bot', got '%s'", cfg.Capture.DefaultBotName)
	}

	if cfg.Browser.Width != 1280 || cfg.Browser.Height != 720 {
		t.Errorf("Expected viewport 1280x720, got %dx%d", cfg.Browser.Width, cfg.Browser.Height)
	}
}

func TestLoadNonExistent(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Expected error when loading non-existent file")
	}
}

func TestDefaults(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configPath, []byte("version: \"1.0\"\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("Expected default listen_addr ':8090', got '%s'", cfg.Server.ListenAddr)
	}
	if cfg.Capture.RecordingsRoot != "recordings" {
		t.Errorf("Expected default recordings root 'recordings', got '%s'", cfg.Capture.RecordingsRoot)
	}
	if cfg.Capture.DefaultBotName != "MeetScribe Notetaker" {
		t.Errorf("Expected default bot name, got '%s'", cfg.Capture.DefaultBotName)
	}
	if cfg.Capture.FFmpegPath != "ffmpeg" {
		t.Errorf("Expected default ffmpeg path 'ffmpeg', got '%s'", cfg.Capture.FFmpegPath)
	}
	if cfg.Browser.Width != 1920 || cfg.Browser.Height != 1080 {
		t.Errorf("Expected default viewport 1920x1080, got %dx%d", cfg.Browser.Width, cfg.Browser.Height)
	}
	if cfg.Events.Port != 4222 {
		t.Errorf("Expected default events port 4222, got %d", cfg.Events.Port)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Expected default logging info/json, got %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
	if cfg.Logging.Buffer != 1000 {
		t.Errorf("Expected default log buffer 1000, got %d", cfg.Logging.Buffer)
	}
}

func TestDefaultBooleans(t *testing.T) {
	cfg := Default()
	if !cfg.Browser.Headless {
		t.Error("Default config should run the browser headless")
	}
	if !cfg.Events.Enabled {
		t.Error("Default config should enable the event bus")
	}

	// A file that disables them explicitly is respected on load.
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	raw := "browser:\n  headless: false\nevents:\n  enabled: false\n"
	if err := os.WriteFile(configPath, []byte(raw), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if loaded.Browser.Headless {
		t.Error("Explicit headless: false should survive load")
	}
	if loaded.Events.Enabled {
		t.Error("Explicit enabled: false should survive load")
	}
}

func TestEnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
capture:
  default_bot_name: "File Bot"
  recordings_root: "/from/file"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("MEETSCRIBE_BOT_NAME", "Env Bot")
	t.Setenv("MEETSCRIBE_RECORDINGS_ROOT", "/from/env")
	t.Setenv("MEETSCRIBE_LISTEN_ADDR", ":7070")
	t.Setenv("MEETSCRIBE_EVENTS_PORT", "5333")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Capture.DefaultBotName != "Env Bot" {
		t.Errorf("env bot name override lost: got '%s'", cfg.Capture.DefaultBotName)
	}
	if cfg.Capture.RecordingsRoot != "/from/env" {
		t.Errorf("env recordings root override lost: got '%s'", cfg.Capture.RecordingsRoot)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("env listen addr override lost: got '%s'", cfg.Server.ListenAddr)
	}
	if cfg.Events.Port != 5333 {
		t.Errorf("env events port override lost: got %d", cfg.Events.Port)
	}
}

func TestEnvOverrideBadPortIgnored(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("version: \"1.0\"\n"), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}

	t.Setenv("MEETSCRIBE_EVENTS_PORT", "not-a-port")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Events.Port != 4222 {
		t.Errorf("bad env port should keep default 4222, got %d", cfg.Events.Port)
	}
}

func TestSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := Default()
	cfg.Capture.DefaultBotName = "Saved Bot"
	cfg.SetPath(configPath)

	err := cfg.Save()
	if err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	// Verify file was created
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Error("Config file was not created")
	}

	// Load and verify
	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}

	if loaded.Capture.DefaultBotName != "Saved Bot" {
		t.Errorf("Expected bot name 'Saved Bot', got '%s'", loaded.Capture.DefaultBotName)
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := Default()
	cfg.SetPath(configPath)
	if err := cfg.Save(); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	if _, err := os.Stat(configPath + ".tmp"); !os.IsNotExist(err) {
		t.Error("Temporary file left behind after save")
	}
}

func TestSecretEncryptionRoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	cfg := Default()
	cfg.Capture.OpenAIAPIKey = "sk-test-secret"
	cfg.SetPath(configPath)
	if err := cfg.Save(); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	// The key is never written in the clear.
	raw, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("Failed to read saved config: %v", err)
	}
	if strings.Contains(string(raw), "sk-test-secret") {
		t.Error("API key stored in plaintext")
	}
	if !strings.Contains(string(raw), "encrypted:") {
		t.Error("API key not marked as encrypted")
	}

	loaded, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load saved config: %v", err)
	}
	if loaded.Capture.OpenAIAPIKey != "sk-test-secret" {
		t.Errorf("Expected decrypted key, got '%s'", loaded.Capture.OpenAIAPIKey)
	}
}

func TestOnChangeCallback(t *testing.T) {
	cfg := Default()

	called := false
	cfg.OnChange(func(*Config) { called = true })

	cfg.mu.Lock()
	watchers := cfg.watchers
	cfg.mu.Unlock()

	if len(watchers) != 1 {
		t.Fatalf("Expected 1 watcher, got %d", len(watchers))
	}
	watchers[0](cfg)
	if !called {
		t.Error("OnChange callback not invoked")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key := getEncryptionKey()

	tests := []string{"", "short", "a much longer secret value with spaces"}
	for _, plaintext := range tests {
		encrypted, err := encrypt(key, plaintext)
		if err != nil {
			t.Fatalf("encrypt(%q) failed: %v", plaintext, err)
		}
		decrypted, err := decrypt(key, encrypted)
		if err != nil {
			t.Fatalf("decrypt failed: %v", err)
		}
		if decrypted != plaintext {
			t.Errorf("round trip of %q produced %q", plaintext, decrypted)
		}
	}
}

func TestDecryptGarbage(t *testing.T) {
	key := getEncryptionKey()
	if _, err := decrypt(key, "AAAA"); err == nil {
		t.Error("Expected error decrypting truncated ciphertext")
	}
	if _, err := decrypt(key, "!!!not-base64!!!"); err == nil {
		t.Error("Expected error decrypting invalid base64")
	}
}
