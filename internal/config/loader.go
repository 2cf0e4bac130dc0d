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

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper", "whisper-native"},
	"tts": {"elevenlabs"},
	"vad": {"energy"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// The cascaded pipeline needs all three stages.
	if cfg.Providers.STT.Name == "" {
		errs = append(errs, errors.New("providers.stt is required"))
	}
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts is required"))
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	validateProviderName("vad", cfg.Providers.VAD.Name)

	// Wake
	if cfg.Wake.MinScore < 0 || cfg.Wake.MinScore > 1 {
		errs = append(errs, fmt.Errorf("wake.min_score %.2f is out of range (0, 1]", cfg.Wake.MinScore))
	}

	// Listening bounds
	if cfg.Listen.MinSpeechMs < 0 {
		errs = append(errs, fmt.Errorf("listen.min_speech_ms %d must not be negative", cfg.Listen.MinSpeechMs))
	}
	if cfg.Listen.MaxSpeechMs != 0 && cfg.Listen.MaxSpeechMs <= cfg.Listen.MinSpeechMs {
		errs = append(errs, fmt.Errorf("listen.max_speech_ms %d must exceed min_speech_ms %d", cfg.Listen.MaxSpeechMs, cfg.Listen.MinSpeechMs))
	}
	if cfg.Listen.MinSilenceMs < 0 {
		errs = append(errs, fmt.Errorf("listen.min_silence_ms %d must not be negative", cfg.Listen.MinSilenceMs))
	}
	if cfg.Listen.SpeechPadMs < 0 {
		errs = append(errs, fmt.Errorf("listen.speech_pad_ms %d must not be negative", cfg.Listen.SpeechPadMs))
	}

	// Barge-in
	if cfg.BargeIn.WindowMs < 0 {
		errs = append(errs, fmt.Errorf("barge_in.window_ms %d must not be negative", cfg.BargeIn.WindowMs))
	}
	if cfg.BargeIn.SpeechRatio < 0 || cfg.BargeIn.SpeechRatio > 1 {
		errs = append(errs, fmt.Errorf("barge_in.speech_ratio %.2f is out of range (0, 1]", cfg.BargeIn.SpeechRatio))
	}

	// Memory
	if cfg.Memory.Capacity < 0 {
		errs = append(errs, fmt.Errorf("memory.capacity %d must not be negative", cfg.Memory.Capacity))
	}
	if cfg.Memory.JournalPath == "" {
		slog.Warn("memory.journal_path is empty; conversation memory will not survive restarts")
	}

	// Sampling
	s := cfg.Dialogue.Sampling
	if s.Temperature < 0 || s.Temperature > 2 {
		errs = append(errs, fmt.Errorf("dialogue.sampling.temperature %.2f is out of range [0, 2]", s.Temperature))
	}
	if s.TopP < 0 || s.TopP > 1 {
		errs = append(errs, fmt.Errorf("dialogue.sampling.top_p %.2f is out of range (0, 1]", s.TopP))
	}
	if s.RepeatPenalty < 0 {
		errs = append(errs, fmt.Errorf("dialogue.sampling.repeat_penalty %.2f must not be negative", s.RepeatPenalty))
	}
	if s.MaxTokens < 0 {
		errs = append(errs, fmt.Errorf("dialogue.sampling.max_tokens %d must not be negative", s.MaxTokens))
	}

	// Timeouts
	t := cfg.Dialogue.Timeouts
	if t.STTMs < 0 || t.LLMMs < 0 || t.TTSMs < 0 {
		errs = append(errs, errors.New("dialogue.timeouts values must not be negative"))
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
