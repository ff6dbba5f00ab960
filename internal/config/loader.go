package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"stt": {"whisper", "deepgram", "openai"},
	"tts": {"elevenlabs", "coqui", "openai"},
}

// envRef matches ${VAR} and ${VAR:-fallback}.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
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

// LoadFromReader expands environment references in r, decodes the YAML,
// applies defaults, and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	raw = ExpandEnv(raw, os.LookupEnv)

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	cfg.ApplyDefaults()
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces ${VAR} references in raw using lookup. An unset variable
// expands to its ":-" fallback when one is given, else to the empty string.
// Bare $VAR references are left untouched.
func ExpandEnv(raw []byte, lookup func(string) (string, bool)) []byte {
	return envRef.ReplaceAllFunc(raw, func(m []byte) []byte {
		sub := envRef.FindSubmatch(m)
		if v, ok := lookup(string(sub[1])); ok {
			return []byte(v)
		}
		return sub[2]
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	s := cfg.Server
	if s.LogLevel != "" && !s.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", s.LogLevel))
	}
	if s.WSPath != "" && !strings.HasPrefix(s.WSPath, "/") {
		errs = append(errs, fmt.Errorf("server.ws_path %q must start with /", s.WSPath))
	}
	if s.AudioFrameBytes < 0 {
		errs = append(errs, fmt.Errorf("server.audio_frame_bytes %d must not be negative", s.AudioFrameBytes))
	}
	if s.ReadLimitBytes < 0 {
		errs = append(errs, fmt.Errorf("server.read_limit_bytes %d must not be negative", s.ReadLimitBytes))
	}
	if s.MailboxSize < 0 {
		errs = append(errs, fmt.Errorf("server.mailbox_size %d must not be negative", s.MailboxSize))
	}
	if s.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_timeout %s must not be negative", s.ShutdownTimeout))
	}
	if s.TLS != nil && (s.TLS.CertFile == "" || s.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}
	for i, o := range s.AllowedOrigins {
		if strings.TrimSpace(o) == "" {
			errs = append(errs, fmt.Errorf("server.allowed_origins[%d] is empty", i))
		}
	}

	// Interview
	iv := cfg.Interview
	if iv.Retention < 0 {
		errs = append(errs, fmt.Errorf("interview.retention %s must not be negative", iv.Retention))
	}
	if iv.MaxTurnsLimit < 0 {
		errs = append(errs, fmt.Errorf("interview.max_turns_limit %d must not be negative", iv.MaxTurnsLimit))
	}
	if iv.MaxAnswerBytes < 0 {
		errs = append(errs, fmt.Errorf("interview.max_answer_bytes %d must not be negative", iv.MaxAnswerBytes))
	}
	if mt := iv.Defaults.MaxTurns; mt < 0 {
		errs = append(errs, fmt.Errorf("interview.defaults.max_turns %d must not be negative", mt))
	} else if iv.MaxTurnsLimit > 0 && mt > iv.MaxTurnsLimit {
		errs = append(errs, fmt.Errorf("interview.defaults.max_turns %d exceeds interview.max_turns_limit %d", mt, iv.MaxTurnsLimit))
	}

	// Resilience
	r := cfg.Resilience
	if r.MaxFailures < 0 {
		errs = append(errs, fmt.Errorf("resilience.max_failures %d must not be negative", r.MaxFailures))
	}
	if r.ResetTimeout < 0 {
		errs = append(errs, fmt.Errorf("resilience.reset_timeout %s must not be negative", r.ResetTimeout))
	}
	if r.HalfOpenMax < 0 {
		errs = append(errs, fmt.Errorf("resilience.half_open_max %d must not be negative", r.HalfOpenMax))
	}

	// Provider name validation; unknown names only warn.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	for kind, ok := range cfg.Providers.Configured() {
		if !ok {
			slog.Warn("provider not configured; the interview falls back to local defaults", "kind", kind)
		}
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
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
