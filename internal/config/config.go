// Package config provides configuration management for the capture agent
package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Config represents the main agent configuration
type Config struct {
	Version string        `yaml:"version"`
	Server  ServerConfig  `yaml:"server"`
	Capture CaptureConfig `yaml:"capture"`
	Browser BrowserConfig `yaml:"browser"`
	Events  EventsConfig  `yaml:"events"`
	Archive ArchiveConfig `yaml:"archive"`
	Logging LoggingConfig `yaml:"logging"`

	// Internal fields
	mu       sync.RWMutex    `yaml:"-"`
	path     string          `yaml:"-"`
	watchers []func(*Config) `yaml:"-"`
	encKey   []byte          `yaml:"-"`
}

// ServerConfig holds the HTTP API settings
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// CaptureConfig holds meeting capture settings
type CaptureConfig struct {
	RecordingsRoot string `yaml:"recordings_root"`
	DefaultBotName string `yaml:"default_bot_name"`
	AudioDevice    string `yaml:"audio_device,omitempty"`
	FFmpegPath     string `yaml:"ffmpeg_path"`
	DebugJoin      bool   `yaml:"debug_join"`

	// OpenAIAPIKey is reserved for downstream transcript tooling; it is
	// stored encrypted at rest.
	OpenAIAPIKey string `yaml:"openai_api_key,omitempty"`
}

// BrowserConfig holds headless browser settings
type BrowserConfig struct {
	ChromePath string `yaml:"chrome_path,omitempty"`
	Headless   bool   `yaml:"headless"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	UserAgent  string `yaml:"user_agent,omitempty"`
}

// EventsConfig holds embedded event bus settings
type EventsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// ArchiveConfig holds the completed-captures database settings
type ArchiveConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Buffer int    `yaml:"buffer"`
}

// Default returns a configuration with every default applied, suitable
// for seeding a config file on first run.
func Default() *Config {
	cfg := &Config{encKey: getEncryptionKey()}
	// Boolean defaults only apply here; a loaded file keeps whatever it
	// says, including explicit false.
	cfg.Browser.Headless = true
	cfg.Events.Enabled = true
	cfg.setDefaults()
	return cfg
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.path = path
	cfg.encKey = getEncryptionKey()

	// Decrypt sensitive fields
	if err := cfg.decryptSecrets(); err != nil {
		return nil, fmt.Errorf("failed to decrypt secrets: %w", err)
	}

	cfg.setDefaults()
	cfg.applyEnv()

	return &cfg, nil
}

// Save saves the configuration to a YAML file
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saveUnlocked()
}

// saveUnlocked saves without acquiring lock (caller must hold lock)
func (c *Config) saveUnlocked() error {
	// Create a copy for saving (without mutex)
	cfgCopy := &Config{
		Version: c.Version,
		Server:  c.Server,
		Capture: c.Capture,
		Browser: c.Browser,
		Events:  c.Events,
		Archive: c.Archive,
		Logging: c.Logging,
		path:    c.path,
		encKey:  c.encKey,
	}
	if err := cfgCopy.encryptSecrets(); err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}

	data, err := yaml.Marshal(cfgCopy)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// Add header
	header := "# MeetScribe Configuration\n# Auto-generated - manual edits are preserved\n\n"
	data = append([]byte(header), data...)

	// Atomic write
	tmpPath := c.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return os.Rename(tmpPath, c.path)
}

// Watch starts watching for configuration file changes
func (c *Config) Watch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	go func() {
		defer watcher.Close()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&fsnotify.Write == fsnotify.Write {
					time.Sleep(100 * time.Millisecond) // Debounce
					c.reload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Config watch error", "error", err)
			}
		}
	}()

	return watcher.Add(c.path)
}

// OnChange registers a callback for config changes
func (c *Config) OnChange(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.watchers = append(c.watchers, fn)
}

// reload reloads the configuration from disk
func (c *Config) reload() {
	newCfg, err := Load(c.path)
	if err != nil {
		slog.Error("Failed to reload config", "error", err)
		return
	}

	c.mu.Lock()
	// Copy fields individually to avoid copying the mutex
	c.Version = newCfg.Version
	c.Server = newCfg.Server
	c.Capture = newCfg.Capture
	c.Browser = newCfg.Browser
	c.Events = newCfg.Events
	c.Archive = newCfg.Archive
	c.Logging = newCfg.Logging
	c.encKey = newCfg.encKey
	watchers := c.watchers
	c.mu.Unlock()

	slog.Info("Configuration reloaded")

	for _, fn := range watchers {
		fn(c)
	}
}

// SetPath sets the path for the config file (used for saving)
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// GetPath returns the current config file path
func (c *Config) GetPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// setDefaults sets default values for unset fields
func (c *Config) setDefaults() {
	if c.Version == "" {
		c.Version = "1.0"
	}
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8090"
	}
	if c.Capture.RecordingsRoot == "" {
		c.Capture.RecordingsRoot = "recordings"
	}
	if c.Capture.DefaultBotName == "" {
		c.Capture.DefaultBotName = "MeetScribe Notetaker"
	}
	if c.Capture.FFmpegPath == "" {
		c.Capture.FFmpegPath = "ffmpeg"
	}
	if c.Browser.Width == 0 {
		c.Browser.Width = 1920
	}
	if c.Browser.Height == 0 {
		c.Browser.Height = 1080
	}
	if c.Events.Port == 0 {
		c.Events.Port = 4222
	}
	if c.Archive.DatabasePath == "" {
		c.Archive.DatabasePath = "meetscribe.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.Buffer == 0 {
		c.Logging.Buffer = 1000
	}
}

// applyEnv overrides config values from MEETSCRIBE_* environment
// variables. Environment wins over the file; deployments set these
// instead of templating YAML.
func (c *Config) applyEnv() {
	if v := os.Getenv("MEETSCRIBE_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := os.Getenv("MEETSCRIBE_RECORDINGS_ROOT"); v != "" {
		c.Capture.RecordingsRoot = v
	}
	if v := os.Getenv("MEETSCRIBE_BOT_NAME"); v != "" {
		c.Capture.DefaultBotName = v
	}
	if v := os.Getenv("MEETSCRIBE_AUDIO_DEVICE"); v != "" {
		c.Capture.AudioDevice = v
	}
	if v := os.Getenv("MEETSCRIBE_FFMPEG_PATH"); v != "" {
		c.Capture.FFmpegPath = v
	}
	if v := os.Getenv("MEETSCRIBE_OPENAI_API_KEY"); v != "" {
		c.Capture.OpenAIAPIKey = v
	}
	if v := os.Getenv("MEETSCRIBE_CHROME_PATH"); v != "" {
		c.Browser.ChromePath = v
	}
	if v := os.Getenv("MEETSCRIBE_DATABASE_PATH"); v != "" {
		c.Archive.DatabasePath = v
	}
	if v := os.Getenv("MEETSCRIBE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MEETSCRIBE_EVENTS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Events.Port = port
		}
	}
}

// encryptSecrets encrypts sensitive fields
func (c *Config) encryptSecrets() error {
	if c.Capture.OpenAIAPIKey != "" && !strings.HasPrefix(c.Capture.OpenAIAPIKey, "encrypted:") {
		encrypted, err := encrypt(c.encKey, c.Capture.OpenAIAPIKey)
		if err != nil {
			return err
		}
		c.Capture.OpenAIAPIKey = "encrypted:" + encrypted
	}
	return nil
}

// decryptSecrets decrypts sensitive fields
func (c *Config) decryptSecrets() error {
	if strings.HasPrefix(c.Capture.OpenAIAPIKey, "encrypted:") {
		encrypted := strings.TrimPrefix(c.Capture.OpenAIAPIKey, "encrypted:")
		decrypted, err := decrypt(c.encKey, encrypted)
		if err != nil {
			return err
		}
		c.Capture.OpenAIAPIKey = decrypted
	}
	return nil
}

// getEncryptionKey returns the encryption key from environment or a
// built-in fallback
func getEncryptionKey() []byte {
	keyStr := os.Getenv("MEETSCRIBE_ENCRYPTION_KEY")
	if keyStr != "" {
		key, err := base64.StdEncoding.DecodeString(keyStr)
		if err == nil && len(key) == 32 {
			return key
		}
	}

	// Default key (should be replaced in production)
	// Must be exactly 32 bytes for AES-256
	return []byte("meetscribe-default-key-change!!!")
}

// encrypt encrypts a string using AES-GCM
func encrypt(key []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a string using AES-GCM
func decrypt(key []byte, ciphertext string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", err
	}

	if len(data) < gcm.NonceSize() {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertextBytes := data[:gcm.NonceSize()], data[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, ciphertextBytes, nil)
	if err != nil {
		return "", err
	}

	return string(plaintext), nil
}
