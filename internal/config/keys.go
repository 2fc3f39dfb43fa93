package config

import "os"

// APIKeySource represents where an API key comes from.
type APIKeySource string

const (
	KeySourceEnv    APIKeySource = "env"
	KeySourceConfig APIKeySource = "config"
	KeySourceNone   APIKeySource = "none"
)

// KeyStatus represents the status of an API key.
type KeyStatus struct {
	Name   string       `json:"name"`
	Source APIKeySource `json:"source"`
	IsSet  bool         `json:"is_set"`
	Masked string       `json:"masked,omitempty"` // e.g., "abc...xyz"
}

// CheckAPIKeys returns the status of the provider API keys.
func CheckAPIKeys(cfg *Config) []KeyStatus {
	return []KeyStatus{
		checkKey("News API Key", cfg.News.APIKey, "NEWS_API_KEY", "STOCKPULSE_NEWS_API_KEY"),
		checkKey("Alpha Vantage Key", cfg.Prices.APIKey, "ALPHA_VANTAGE_KEY", "STOCKPULSE_PRICES_API_KEY"),
	}
}

// checkKey checks if a key is set and where it came from.
func checkKey(name, value string, envVars ...string) KeyStatus {
	status := KeyStatus{
		Name:   name,
		IsSet:  value != "",
		Source: KeySourceNone,
	}
	if value == "" {
		return status
	}

	status.Source = KeySourceConfig
	for _, env := range envVars {
		if os.Getenv(env) != "" {
			status.Source = KeySourceEnv
			break
		}
	}
	status.Masked = maskKey(value)
	return status
}

// maskKey masks an API key for display, showing only first 3 and last 3 chars.
func maskKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:3] + "..." + key[len(key)-3:]
}

// Redacted returns a copy of the configuration safe to expose: provider
// keys are masked and the database DSN is dropped.
func (c *Config) Redacted() Config {
	out := *c
	if out.News.APIKey != "" {
		out.News.APIKey = maskKey(out.News.APIKey)
	}
	if out.Prices.APIKey != "" {
		out.Prices.APIKey = maskKey(out.Prices.APIKey)
	}
	if out.Database.Driver != "sqlite" {
		out.Database.DSN = ""
	}
	return out
}
