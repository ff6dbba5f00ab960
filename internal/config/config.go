// Package config provides the configuration schema, loader, and provider registry
// for the mockvox interview server.
package config

import (
	"time"

	"github.com/MrWong99/mockvox/internal/session"
	"github.com/MrWong99/mockvox/pkg/provider/tts"
)

// LogLevel controls log verbosity for the mockvox server.
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

// Defaults applied by [Config.ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr      = ":8080"
	DefaultWSPath          = "/v1/interview"
	DefaultAudioFrameBytes = 16 * 1024
	DefaultReadLimitBytes  = 1 << 20
	DefaultMaxAnswerBytes  = 16 << 20
	DefaultMailboxSize     = 64
	DefaultRetention       = 10 * time.Minute
	DefaultMaxTurnsLimit   = 20
	DefaultShutdownTimeout = 15 * time.Second
	DefaultMaxFailures     = 5
	DefaultResetTimeout    = 30 * time.Second
	DefaultHalfOpenMax     = 1
)

// Config is the root configuration structure for mockvox.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Interview  InterviewConfig  `yaml:"interview"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Resilience ResilienceConfig `yaml:"resilience"`
}

// ServerConfig holds network and logging settings for the mockvox server.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// WSPath is the HTTP path of the interview websocket endpoint.
	WSPath string `yaml:"ws_path"`

	// AllowedOrigins lists host patterns accepted on the websocket upgrade in
	// addition to same-origin requests (e.g., "app.example.com", "*.example.com").
	AllowedOrigins []string `yaml:"allowed_origins"`

	// AudioFrameBytes is the maximum size of one outbound speech frame.
	AudioFrameBytes int `yaml:"audio_frame_bytes"`

	// ReadLimitBytes caps the size of a single inbound websocket message.
	ReadLimitBytes int64 `yaml:"read_limit_bytes"`

	// MailboxSize is the number of inbound frames buffered per connection
	// before the read loop blocks.
	MailboxSize int `yaml:"mailbox_size"`

	// ShutdownTimeout bounds graceful shutdown of open connections.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

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

// InterviewConfig controls session lifetime and the default interview setup.
type InterviewConfig struct {
	// Retention is how long a finished session stays readable after done.
	Retention time.Duration `yaml:"retention"`

	// MaxTurnsLimit clamps the maxTurns a client may request.
	MaxTurnsLimit int `yaml:"max_turns_limit"`

	// MaxAnswerBytes caps the audio buffered for one answer.
	MaxAnswerBytes int `yaml:"max_answer_bytes"`

	// FallbackPersona replaces the generated persona when the LLM fails.
	// Empty selects the built-in text.
	FallbackPersona string `yaml:"fallback_persona"`

	// Defaults fills fields the start message and prior session leave empty.
	Defaults InterviewDefaults `yaml:"defaults"`
}

// InterviewDefaults is the YAML form of the session default table.
type InterviewDefaults struct {
	CandidateName string `yaml:"candidate_name"`
	Role          string `yaml:"role"`
	Level         string `yaml:"level"`
	Language      string `yaml:"language"`
	Round         string `yaml:"round"`
	MaxTurns      int    `yaml:"max_turns"`
	Voice         string `yaml:"voice"`
	JobContext    string `yaml:"job_context"`
}

// SessionDefaults returns the resolution table for new sessions. Empty
// fields inherit the built-in table.
func (c InterviewConfig) SessionDefaults() session.Defaults {
	d := session.BuiltinDefaults()
	overlay := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	overlay(&d.CandidateName, c.Defaults.CandidateName)
	overlay(&d.Role, c.Defaults.Role)
	overlay(&d.Level, c.Defaults.Level)
	overlay(&d.Language, c.Defaults.Language)
	overlay(&d.Round, c.Defaults.Round)
	overlay(&d.Voice, c.Defaults.Voice)
	overlay(&d.JobContext, c.Defaults.JobContext)
	if c.Defaults.MaxTurns > 0 {
		d.MaxTurns = c.Defaults.MaxTurns
	}
	if c.MaxTurnsLimit > 0 {
		d.MaxTurnsLimit = c.MaxTurnsLimit
	}
	return d
}

// ProvidersConfig declares which provider implementation to use for each
// collaborator. Each field selects a named provider registered in the [Registry].
type ProvidersConfig struct {
	LLM ProviderEntry `yaml:"llm"`
	STT ProviderEntry `yaml:"stt"`
	TTS ProviderEntry `yaml:"tts"`
}

// Configured reports, per collaborator kind, whether a provider is named.
func (p ProvidersConfig) Configured() map[string]bool {
	return map[string]bool{
		"llm": p.LLM.Name != "",
		"stt": p.STT.Name != "",
		"tts": p.TTS.Name != "",
	}
}

// ProviderEntry is the common configuration block shared by all provider types.
// The Name field is used to look up the constructor in the [Registry].
type ProviderEntry struct {
	// Name selects the registered provider implementation (e.g., "openai", "deepgram").
	Name string `yaml:"name"`

	// APIKey is the authentication key for the provider's API if any.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the provider's default API endpoint.
	// Leave empty to use the provider's built-in default.
	BaseURL string `yaml:"base_url"`

	// Model selects a specific model within the provider (e.g., "gpt-4o", "nova-2").
	Model string `yaml:"model"`

	// Timeout bounds one request to the provider. Zero keeps the provider default.
	Timeout time.Duration `yaml:"timeout"`

	// Voices maps interview voice profiles to provider voice IDs (TTS only).
	Voices map[string]string `yaml:"voices"`

	// Options holds provider-specific configuration values not covered by the
	// standard fields above. Values may be strings, numbers, booleans, or nested maps.
	Options map[string]any `yaml:"options"`
}

// VoiceMap converts the Voices table into a [tts.VoiceMap]. The "default"
// key, when present, becomes the fallback voice.
func (e ProviderEntry) VoiceMap() tts.VoiceMap {
	m := tts.VoiceMap{Voices: make(map[string]string, len(e.Voices))}
	for k, v := range e.Voices {
		if k == "default" {
			m.Default = v
			continue
		}
		m.Voices[k] = v
	}
	return m
}

// OptString extracts a string value from Options.
// Returns "" if the key is absent or the value is not a string.
func (e ProviderEntry) OptString(key string) string {
	s, _ := e.Options[key].(string)
	return s
}

// OptInt extracts an integer value from Options. YAML integers decode as int.
func (e ProviderEntry) OptInt(key string) int {
	switch v := e.Options[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// ResilienceConfig tunes the circuit breaker placed in front of each provider.
type ResilienceConfig struct {
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
	HalfOpenMax  int           `yaml:"half_open_max"`
}

// ApplyDefaults fills zero-valued fields with their defaults. It is called by
// [LoadFromReader] before validation.
func (c *Config) ApplyDefaults() {
	s := &c.Server
	if s.ListenAddr == "" {
		s.ListenAddr = DefaultListenAddr
	}
	if s.LogLevel == "" {
		s.LogLevel = LogInfo
	}
	if s.WSPath == "" {
		s.WSPath = DefaultWSPath
	}
	if s.AudioFrameBytes == 0 {
		s.AudioFrameBytes = DefaultAudioFrameBytes
	}
	if s.ReadLimitBytes == 0 {
		s.ReadLimitBytes = DefaultReadLimitBytes
	}
	if s.MailboxSize == 0 {
		s.MailboxSize = DefaultMailboxSize
	}
	if s.ShutdownTimeout == 0 {
		s.ShutdownTimeout = DefaultShutdownTimeout
	}

	iv := &c.Interview
	if iv.Retention == 0 {
		iv.Retention = DefaultRetention
	}
	if iv.MaxTurnsLimit == 0 {
		iv.MaxTurnsLimit = DefaultMaxTurnsLimit
	}
	if iv.MaxAnswerBytes == 0 {
		iv.MaxAnswerBytes = DefaultMaxAnswerBytes
	}

	r := &c.Resilience
	if r.MaxFailures == 0 {
		r.MaxFailures = DefaultMaxFailures
	}
	if r.ResetTimeout == 0 {
		r.ResetTimeout = DefaultResetTimeout
	}
	if r.HalfOpenMax == 0 {
		r.HalfOpenMax = DefaultHalfOpenMax
	}
}
