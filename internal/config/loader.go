package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind. Used by
// [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"stt":    {"deepgram"},
	"dialog": {"openai", "anthropic", "gemini", "mistral", "groq", "deepseek", "ollama", "llamacpp", "llamafile"},
	"tts":    {"elevenlabs", "openai"},
}

// validCategories are the failure categories fallback chains may key on.
var validCategories = []string{
	"timeout", "invalid_voice", "api_error", "network_error", "unclassified",
}

// validLanguages are the supported initial conversation languages.
var validLanguages = []string{"en", "hi", "mixed"}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("dialog", cfg.Providers.Dialog.Name)

	ttsSeen := make(map[string]int, len(cfg.Providers.TTS))
	for i, p := range cfg.Providers.TTS {
		prefix := fmt.Sprintf("providers.tts[%d]", i)
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
			continue
		}
		if prev, ok := ttsSeen[p.Name]; ok {
			errs = append(errs, fmt.Errorf("%s.name %q is a duplicate of providers.tts[%d]", prefix, p.Name, prev))
		}
		ttsSeen[p.Name] = i
		validateProviderName("tts", p.Name)
	}

	for cat, chain := range cfg.Providers.FallbackChains {
		if !slices.Contains(validCategories, cat) {
			errs = append(errs, fmt.Errorf("providers.fallback_chains key %q is not a failure category; valid keys: %v", cat, validCategories))
		}
		for _, name := range chain {
			if _, ok := ttsSeen[name]; !ok {
				errs = append(errs, fmt.Errorf("providers.fallback_chains[%s] references unknown tts provider %q", cat, name))
			}
		}
	}

	// Pipeline
	p := cfg.Pipeline
	if p.InitialLanguage != "" && !slices.Contains(validLanguages, p.InitialLanguage) {
		errs = append(errs, fmt.Errorf("pipeline.initial_language %q is invalid; valid values: %v", p.InitialLanguage, validLanguages))
	}
	if p.Sensitivity < 0 || p.Sensitivity > 1 {
		errs = append(errs, fmt.Errorf("pipeline.sensitivity %.2f is out of range [0, 1]", p.Sensitivity))
	}
	for _, t := range []struct {
		name  string
		value float64
	}{
		{"immediate_threshold", p.ImmediateThreshold},
		{"delayed_threshold", p.DelayedThreshold},
		{"minimum_threshold", p.MinimumThreshold},
	} {
		if t.value < 0 || t.value > 1 {
			errs = append(errs, fmt.Errorf("pipeline.%s %.2f is out of range [0, 1]", t.name, t.value))
		}
	}
	if p.MinimumThreshold > p.DelayedThreshold || p.DelayedThreshold > p.ImmediateThreshold {
		errs = append(errs, fmt.Errorf("pipeline thresholds must satisfy minimum <= delayed <= immediate, got %.2f/%.2f/%.2f",
			p.MinimumThreshold, p.DelayedThreshold, p.ImmediateThreshold))
	}
	for _, d := range []struct {
		name  string
		value int
	}{
		{"cooldown_ms", p.CooldownMs},
		{"detection_window_ms", p.DetectionWindowMs},
		{"min_switch_spacing_ms", p.MinSwitchSpacingMs},
		{"max_reconnect_attempts", p.MaxReconnectAttempts},
		{"chunk_size_bytes", p.ChunkSizeBytes},
		{"chunk_interval_ms", p.ChunkIntervalMs},
		{"per_provider_timeout_ms", p.PerProviderTimeoutMs},
		{"idle_timeout_ms", p.IdleTimeoutMs},
	} {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("pipeline.%s must not be negative, got %d", d.name, d.value))
		}
	}

	if len(cfg.Providers.TTS) == 0 {
		slog.Warn("no tts providers configured; every response will use canned fallback audio")
	}
	if cfg.Store.PostgresDSN == "" {
		slog.Warn("store.postgres_dsn is empty; call events will only be kept in memory")
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
