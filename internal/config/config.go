// Package config provides the configuration schema and loader for the
// dialcore call server.
package config

import "time"

// LogLevel controls log verbosity for the server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration structure, typically loaded from a YAML
// file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Store     StoreConfig     `yaml:"store"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// MediaPath is the HTTP path where telephony media websockets connect.
	// Default: "/media".
	MediaPath string `yaml:"media_path"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// TLS configures TLS for the server. When nil, the server runs plain HTTP.
	TLS *TLSConfig `yaml:"tls"`
}

// TLSConfig holds TLS certificate paths for enabling HTTPS.
type TLSConfig struct {
	// CertFile is the path to the PEM-encoded TLS certificate.
	CertFile string `yaml:"cert_file"`

	// KeyFile is the path to the PEM-encoded TLS private key.
	KeyFile string `yaml:"key_file"`
}

// ProvidersConfig declares the vendor-facing collaborators.
type ProvidersConfig struct {
	// STT selects the speech-to-text provider.
	STT ProviderEntry `yaml:"stt"`

	// Dialog selects the response-generation provider.
	Dialog ProviderEntry `yaml:"dialog"`

	// TTS lists synthesis providers in preference order. The first entry is
	// the default until performance statistics accumulate.
	TTS []ProviderEntry `yaml:"tts"`

	// FallbackChains optionally overrides the per-failure-category provider
	// chains, keyed by category name (timeout, invalid_voice, api_error,
	// network_error, unclassified). Entries reference TTS provider names.
	// When empty, every category tries the TTS list in order.
	FallbackChains map[string][]string `yaml:"fallback_chains"`
}

// ProviderEntry is the common configuration block shared by all provider
// kinds.
type ProviderEntry struct {
	// Name selects the provider implementation (e.g., "deepgram", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider.
	Model string `yaml:"model"`

	// Options holds provider-specific values not covered by the standard
	// fields above.
	Options map[string]any `yaml:"options"`
}

// PipelineConfig holds the behavioral knobs of the call pipeline. Durations
// are expressed in milliseconds so the YAML stays unit-free.
type PipelineConfig struct {
	// InitialLanguage each call starts in (en, hi, mixed). Default: en.
	InitialLanguage string `yaml:"initial_language"`

	// Sensitivity in [0,1] controls barge-in eagerness; higher fires sooner.
	Sensitivity float64 `yaml:"sensitivity"`

	// CooldownMs suppresses repeat interruptions after one fires.
	CooldownMs int `yaml:"cooldown_ms"`

	// DetectionWindowMs is the trailing window for interruption density.
	DetectionWindowMs int `yaml:"detection_window_ms"`

	// Language switch confidence tiers; must satisfy
	// minimum <= delayed <= immediate.
	ImmediateThreshold float64 `yaml:"immediate_threshold"`
	DelayedThreshold   float64 `yaml:"delayed_threshold"`
	MinimumThreshold   float64 `yaml:"minimum_threshold"`

	// MinSwitchSpacingMs vetoes language switches closer than this.
	MinSwitchSpacingMs int `yaml:"min_switch_spacing_ms"`

	// MaxReconnectAttempts bounds transport recovery per drop.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// ChunkSizeBytes and ChunkIntervalMs shape outbound audio pacing.
	ChunkSizeBytes  int `yaml:"chunk_size_bytes"`
	ChunkIntervalMs int `yaml:"chunk_interval_ms"`

	// PerProviderTimeoutMs bounds each synthesis attempt.
	PerProviderTimeoutMs int `yaml:"per_provider_timeout_ms"`

	// IdleTimeoutMs closes channels with no audio activity.
	IdleTimeoutMs int `yaml:"idle_timeout_ms"`
}

// Cooldown returns CooldownMs as a duration.
func (p PipelineConfig) Cooldown() time.Duration {
	return time.Duration(p.CooldownMs) * time.Millisecond
}

// DetectionWindow returns DetectionWindowMs as a duration.
func (p PipelineConfig) DetectionWindow() time.Duration {
	return time.Duration(p.DetectionWindowMs) * time.Millisecond
}

// MinSwitchSpacing returns MinSwitchSpacingMs as a duration.
func (p PipelineConfig) MinSwitchSpacing() time.Duration {
	return time.Duration(p.MinSwitchSpacingMs) * time.Millisecond
}

// ChunkInterval returns ChunkIntervalMs as a duration.
func (p PipelineConfig) ChunkInterval() time.Duration {
	return time.Duration(p.ChunkIntervalMs) * time.Millisecond
}

// PerProviderTimeout returns PerProviderTimeoutMs as a duration.
func (p PipelineConfig) PerProviderTimeout() time.Duration {
	return time.Duration(p.PerProviderTimeoutMs) * time.Millisecond
}

// IdleTimeout returns IdleTimeoutMs as a duration.
func (p PipelineConfig) IdleTimeout() time.Duration {
	return time.Duration(p.IdleTimeoutMs) * time.Millisecond
}

// StoreConfig selects the call event store.
type StoreConfig struct {
	// PostgresDSN enables the PostgreSQL event store. Empty keeps events
	// in process memory only.
	PostgresDSN string `yaml:"postgres_dsn"`
}
