// Package credentials resolves symbolic provider names to secrets.
//
// Lookup order: process environment (fixed mapping), the master
// credentials.json file, then a per-service token file. Results are
// cached for 60 seconds; no network access is performed.
package credentials

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"openclaw/internal/clawerr"
	"openclaw/internal/logging"
)

const cacheTTL = 60 * time.Second

// envMapping is the fixed symbolic-name to environment-variable table.
var envMapping = map[string]string{
	"openai":     "OPENAI_API_KEY",
	"openrouter": "OPENROUTER_API_KEY",
	"deepseek":   "DEEPSEEK_API_KEY",
	"gemini":     "GEMINI_API_KEY",
	"anthropic":  "ANTHROPIC_API_KEY",
	"elevenlabs": "ELEVENLABS_API_KEY",
	"hume":       "HUME_API_KEY",
	"telegram":   "TELEGRAM_BOT_TOKEN",
	"twilio":     "TWILIO_AUTH_TOKEN",
}

// tokenFileKeys are the accepted field names inside per-service token files.
var tokenFileKeys = []string{"token", "api_key", "key", "access_token"}

// Service performs cached credential lookups.
type Service struct {
	secretsDir string
	cache      *expirable.LRU[string, string]
	logger     logging.Logger
}

// NewService creates a credential service over the given secrets directory.
func NewService(secretsDir string, logger logging.Logger) *Service {
	return &Service{
		secretsDir: secretsDir,
		cache:      expirable.NewLRU[string, string](256, nil, cacheTTL),
		logger:     logging.OrNop(logger),
	}
}

// Get resolves a credential by symbolic name. The second return value is
// false when no source can provide it.
func (s *Service) Get(name string) (string, bool) {
	name = strings.ToLower(name)
	if cached, ok := s.cache.Get(name); ok {
		return cached, true
	}

	if value := s.resolve(name); value != "" {
		s.cache.Add(name, value)
		return value, true
	}
	return "", false
}

// Require resolves a credential or fails with MissingCredentialError.
func (s *Service) Require(name string) (string, error) {
	if value, ok := s.Get(name); ok {
		return value, nil
	}
	return "", &clawerr.MissingCredentialError{Name: name}
}

// Has reports whether a credential can be resolved.
func (s *Service) Has(name string) bool {
	_, ok := s.Get(name)
	return ok
}

// GetAll returns every resolvable credential whose name has the prefix.
// Only names known to the env mapping or present in the master file are
// considered.
func (s *Service) GetAll(prefix string) map[string]string {
	prefix = strings.ToLower(prefix)
	out := make(map[string]string)
	for name := range envMapping {
		if strings.HasPrefix(name, prefix) {
			if value, ok := s.Get(name); ok {
				out[name] = value
			}
		}
	}
	for name := range s.masterFile() {
		if strings.HasPrefix(strings.ToLower(name), prefix) {
			if value, ok := s.Get(name); ok {
				out[strings.ToLower(name)] = value
			}
		}
	}
	return out
}

// Invalidate clears the cache. Call after rotating a credential.
func (s *Service) Invalidate() {
	s.cache.Purge()
}

func (s *Service) resolve(name string) string {
	if envVar, ok := envMapping[name]; ok {
		if value := os.Getenv(envVar); value != "" {
			return value
		}
	}

	if value, ok := s.masterFile()[name]; ok && value != "" {
		return value
	}

	if value := s.tokenFile(name); value != "" {
		return value
	}

	s.logger.Debug("credential not found: %s", name)
	return ""
}

// masterFile reads credentials.json fresh on every miss; the 60 s cache in
// front keeps this cheap.
func (s *Service) masterFile() map[string]string {
	data, err := os.ReadFile(filepath.Join(s.secretsDir, "credentials.json"))
	if err != nil {
		return nil
	}
	var creds map[string]string
	if err := json.Unmarshal(data, &creds); err != nil {
		s.logger.Warn("credentials.json is not valid JSON: %v", err)
		return nil
	}
	lowered := make(map[string]string, len(creds))
	for k, v := range creds {
		lowered[strings.ToLower(k)] = v
	}
	return lowered
}

// tokenFile reads a per-service token file such as openrouter.json or
// gmail-token.json. These rotate, so they are read on demand.
func (s *Service) tokenFile(name string) string {
	for _, candidate := range []string{name + ".json", name + "-token.json"} {
		data, err := os.ReadFile(filepath.Join(s.secretsDir, candidate))
		if err != nil {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(data, &fields); err != nil {
			s.logger.Warn("token file %s is not valid JSON: %v", candidate, err)
			continue
		}
		for _, key := range tokenFileKeys {
			if value, ok := fields[key].(string); ok && value != "" {
				return value
			}
		}
	}
	return ""
}
