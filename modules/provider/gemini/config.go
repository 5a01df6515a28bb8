package gemini

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// Defaults for the generative-language OpenAI-compatible endpoint.
const (
	DefaultBaseURL   = "https://generativelanguage.googleapis.com/v1beta/openai"
	DefaultModel     = "gemini-2.0-flash"
	DefaultAPIKeyEnv = "GEMINI_API_KEY"
)

// Config holds the configuration for the Gemini provider.
type Config struct {
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	APIKeyEnv   string        `yaml:"api_key_env"`
	Model       string        `yaml:"model"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float64      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
}

// defaults sets default values for unset fields.
func (c *Config) defaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Model == "" {
		c.Model = DefaultModel
	}
	if c.APIKeyEnv == "" {
		c.APIKeyEnv = DefaultAPIKeyEnv
	}
	if c.APIKey == "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
}

// validate returns an error if required fields are missing or malformed.
func (c *Config) validate() error {
	var errs []error
	u, err := url.Parse(c.BaseURL)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("provider.gemini: base_url is not a valid URL: %w", err))
	case u.Scheme != "http" && u.Scheme != "https":
		errs = append(errs, fmt.Errorf("provider.gemini: base_url scheme must be http or https, got %q", u.Scheme))
	}
	if c.APIKey == "" {
		errs = append(errs, fmt.Errorf("provider.gemini: api_key is empty and %s is not set", c.APIKeyEnv))
	}
	if c.MaxTokens < 0 {
		errs = append(errs, errors.New("provider.gemini: max_tokens must not be negative"))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, errors.New("provider.gemini: temperature must be within [0, 2]"))
	}
	return errors.Join(errs...)
}
