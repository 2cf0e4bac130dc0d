// Package config provides the configuration schema, loader, and provider
// registry for the Hark voice assistant.
package config

// LogLevel controls log verbosity for the Hark server.
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

// Config is the root configuration structure for Hark.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Providers ProvidersConfig `yaml:"providers"`
	Wake      WakeConfig      `yaml:"wake"`
	Listen    ListenConfig    `yaml:"listen"`
	BargeIn   BargeInConfig   `yaml:"barge_in"`
	Memory    MemoryConfig    `yaml:"memory"`
	Dialogue  DialogueConfig  `yaml:"dialogue"`
}

// ServerConfig holds network and logging settings for the Hark server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

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

// ProvidersConfig declares which provider implementation to use for each
// pipeline stage. Each field selects a named provider registered in the
// [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
	VAD ProviderEntry `yaml:"vad"`
}

// ProviderEntry is the common configuration block shared by all provider
// types. The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "ollama",
	// "whisper", "elevenlabs").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o",
	// "mistral", a whisper model path).
	Model string `yaml:"model"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or
	// nested maps.
	Options map[string]any `yaml:"options"`
}

// WakeConfig tunes wake-word activation.
type WakeConfig struct {
	// Word is the activation word. Empty uses the built-in default.
	Word string `yaml:"word"`

	// MinScore is the minimum match score in (0, 1] for activation.
	// Zero uses the built-in default.
	MinScore float64 `yaml:"min_score"`
}

// ListenConfig bounds utterance capture. All durations are milliseconds.
type ListenConfig struct {
	// MinSpeechMs is the minimum accumulated speech for a valid utterance;
	// anything shorter is discarded as noise.
	MinSpeechMs int `yaml:"min_speech_ms"`

	// MaxSpeechMs is the forced-cutoff cap on total utterance length.
	MaxSpeechMs int `yaml:"max_speech_ms"`

	// MinSilenceMs is the trailing silence that ends an utterance.
	MinSilenceMs int `yaml:"min_silence_ms"`

	// SpeechPadMs is the audio preceding speech onset that is kept so a soft
	// first syllable is not clipped.
	SpeechPadMs int `yaml:"speech_pad_ms"`
}

// BargeInConfig tunes interruption detection during playback.
type BargeInConfig struct {
	// WindowMs is the debounce window in milliseconds; incoming speech must
	// dominate this much recent audio before playback is interrupted.
	WindowMs int `yaml:"window_ms"`

	// SpeechRatio is the fraction of the window that must be speech to
	// trigger, in (0, 1].
	SpeechRatio float64 `yaml:"speech_ratio"`

	// StartedTalkingThreshold is the VAD probability above which a playback
	// frame counts as the user talking.
	StartedTalkingThreshold float64 `yaml:"started_talking_threshold"`
}

// MemoryConfig holds settings for the bounded conversation memory.
type MemoryConfig struct {
	// Capacity is the maximum number of retained exchanges. Zero uses the
	// built-in default; the oldest exchange is evicted when full.
	Capacity int `yaml:"capacity"`

	// JournalPath, when set, appends every committed exchange to a JSONL
	// journal replayed on startup. Empty disables persistence.
	JournalPath string `yaml:"journal_path"`
}

// DialogueConfig shapes the assistant's responses.
type DialogueConfig struct {
	// SystemPrompt conditions every generation. Empty uses the built-in
	// default prompt.
	SystemPrompt string `yaml:"system_prompt"`

	// Language is the BCP-47 language hint passed to speech recognition.
	Language string `yaml:"language"`

	// Voice configures the TTS voice.
	Voice VoiceConfig `yaml:"voice"`

	// Sampling holds the language model generation parameters.
	Sampling SamplingConfig `yaml:"sampling"`

	// Timeouts bounds each pipeline port call, in milliseconds.
	Timeouts TimeoutsConfig `yaml:"timeouts"`
}

// VoiceConfig specifies the TTS voice.
type VoiceConfig struct {
	// VoiceID is the provider-specific voice identifier.
	VoiceID string `yaml:"voice_id"`

	// Name is an optional human-readable label used in logs.
	Name string `yaml:"name"`
}

// SamplingConfig holds language model generation parameters. Zero values use
// the built-in defaults.
type SamplingConfig struct {
	// Temperature in [0, 2]. Lower is more deterministic.
	Temperature float64 `yaml:"temperature"`

	// TopP is the nucleus sampling cutoff in (0, 1].
	TopP float64 `yaml:"top_p"`

	// RepeatPenalty discourages repetition; 1.0 disables it.
	RepeatPenalty float64 `yaml:"repeat_penalty"`

	// MaxTokens is the hard cap on generated tokens. Responses hitting it
	// are truncated, not failed.
	MaxTokens int `yaml:"max_tokens"`
}

// TimeoutsConfig bounds individual pipeline port calls, in milliseconds.
// Zero values use the built-in defaults.
type TimeoutsConfig struct {
	STTMs int `yaml:"stt_ms"`
	LLMMs int `yaml:"llm_ms"`
	TTSMs int `yaml:"tts_ms"`
}
