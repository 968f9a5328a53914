// Command dialcore is the main entry point for the dialcore call server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/dialverse/dialcore/internal/app"
	"github.com/dialverse/dialcore/internal/config"
	"github.com/dialverse/dialcore/pkg/provider/dialog"
	"github.com/dialverse/dialcore/pkg/provider/dialog/anyllm"
	oadialog "github.com/dialverse/dialcore/pkg/provider/dialog/openai"
	"github.com/dialverse/dialcore/pkg/provider/stt/deepgram"
	"github.com/dialverse/dialcore/pkg/provider/tts"
	"github.com/dialverse/dialcore/pkg/provider/tts/elevenlabs"
	oatts "github.com/dialverse/dialcore/pkg/provider/tts/openai"
	"github.com/dialverse/dialcore/pkg/provider/vad/energy"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "dialcore: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "dialcore: %v\n", err)
		}
		return 1
	}

	logger := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("dialcore starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	providers, err := buildProviders(cfg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	printStartupSummary(cfg)

	application, err := app.New(ctx, cfg, providers)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	slog.Info("server ready — press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping…")

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildProviders instantiates every provider named in cfg.
func buildProviders(cfg *config.Config) (*app.Providers, error) {
	ps := &app.Providers{
		VAD: energy.New(),
		TTS: make(map[string]tts.Synthesizer, len(cfg.Providers.TTS)),
	}

	sttEntry := cfg.Providers.STT
	switch sttEntry.Name {
	case "deepgram":
		var opts []deepgram.Option
		if sttEntry.Model != "" {
			opts = append(opts, deepgram.WithModel(sttEntry.Model))
		}
		p, err := deepgram.New(sttEntry.APIKey, opts...)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", sttEntry.Name, err)
		}
		ps.STT = p
	default:
		return nil, fmt.Errorf("unknown stt provider %q", sttEntry.Name)
	}
	slog.Info("provider created", "kind", "stt", "name", sttEntry.Name)

	gen, err := buildDialog(cfg.Providers.Dialog)
	if err != nil {
		return nil, err
	}
	ps.Dialog = gen
	slog.Info("provider created", "kind", "dialog", "name", cfg.Providers.Dialog.Name)

	for _, entry := range cfg.Providers.TTS {
		synth, err := buildTTS(entry)
		if err != nil {
			return nil, fmt.Errorf("create tts provider %q: %w", entry.Name, err)
		}
		ps.TTS[entry.Name] = synth
		ps.Order = append(ps.Order, entry.Name)
		slog.Info("provider created", "kind", "tts", "name", entry.Name)
	}

	return ps, nil
}

func buildDialog(entry config.ProviderEntry) (dialog.Generator, error) {
	systemPrompt := optString(entry.Options, "system_prompt")

	// The direct OpenAI client supports response streaming knobs the
	// any-llm bridge does not expose, so "openai" gets the native path.
	if entry.Name == "openai" {
		var opts []oadialog.Option
		if entry.BaseURL != "" {
			opts = append(opts, oadialog.WithBaseURL(entry.BaseURL))
		}
		gen, err := oadialog.New(entry.APIKey, entry.Model, systemPrompt, opts...)
		if err != nil {
			return nil, fmt.Errorf("create dialog provider %q: %w", entry.Name, err)
		}
		return gen, nil
	}

	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	gen, err := anyllm.New(entry.Name, entry.Model, systemPrompt, opts...)
	if err != nil {
		return nil, fmt.Errorf("create dialog provider %q: %w", entry.Name, err)
	}
	return gen, nil
}

func buildTTS(entry config.ProviderEntry) (tts.Synthesizer, error) {
	switch entry.Name {
	case "elevenlabs":
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if format := optString(entry.Options, "output_format"); format != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(format))
		}
		for lang, voiceID := range optStringMap(entry.Options, "voices") {
			opts = append(opts, elevenlabs.WithVoice(lang, voiceID))
		}
		return elevenlabs.New(entry.APIKey, optString(entry.Options, "default_voice"), opts...)

	case "openai":
		var opts []oatts.Option
		if entry.Model != "" {
			opts = append(opts, oatts.WithModel(entry.Model))
		}
		if voice := optString(entry.Options, "voice"); voice != "" {
			opts = append(opts, oatts.WithVoice(voice))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oatts.WithBaseURL(entry.BaseURL))
		}
		return oatts.New(entry.APIKey, opts...)

	default:
		return nil, fmt.Errorf("unknown tts provider %q", entry.Name)
	}
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         dialcore — startup summary    ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("Dialog", cfg.Providers.Dialog.Name, cfg.Providers.Dialog.Model)
	for _, entry := range cfg.Providers.TTS {
		printProvider("TTS", entry.Name, entry.Model)
	}
	if cfg.Store.PostgresDSN != "" {
		fmt.Printf("║  Event store     : %-19s ║\n", "postgres")
	} else {
		fmt.Printf("║  Event store     : %-19s ║\n", "memory")
	}
	if cfg.Server.ListenAddr != "" {
		fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}

// optStringMap extracts a map of string values (YAML decodes nested maps as
// map[string]any). Non-string values are skipped.
func optStringMap(opts map[string]any, key string) map[string]string {
	if opts == nil {
		return nil
	}
	raw, ok := opts[key].(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		if s, ok := v.(string); ok {
			out[k] = s
		}
	}
	return out
}
