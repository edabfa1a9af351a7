// Package llm provides the recommendation source: an LLM client abstraction
// and the Recommender that turns a free-text request into title suggestions.
package llm

import (
	"errors"
	"fmt"
	"time"
)

// Provider represents an LLM provider
type Provider string

// ProviderGemini is the Google Gemini provider
const ProviderGemini Provider = "gemini"

// Defaults for a recommendation call.
const (
	DefaultModel       = "gemini-2.5-flash"
	DefaultTemperature = float32(0.7)
	// nine suggestions with a sentence each fit comfortably
	DefaultMaxOutputTokens = int32(2048)
	DefaultCallTimeout     = 60 * time.Second
)

// Config selects the model used for recommendations.
type Config struct {
	Provider        Provider
	Model           string
	Temperature     float32
	MaxOutputTokens int32
	// CallTimeout bounds a whole generation, including a streamed one.
	CallTimeout time.Duration
}

// DefaultConfig returns the Gemini configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Provider:        ProviderGemini,
		Model:           DefaultModel,
		Temperature:     DefaultTemperature,
		MaxOutputTokens: DefaultMaxOutputTokens,
		CallTimeout:     DefaultCallTimeout,
	}
}

// WithModel returns a copy using model. An empty model keeps the current one.
func (c *Config) WithModel(model string) *Config {
	out := *c
	if model != "" {
		out.Model = model
	}
	return &out
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.Provider != ProviderGemini:
		return fmt.Errorf("unsupported llm provider %q", c.Provider)
	case c.Model == "":
		return errors.New("llm model is required")
	case c.Temperature < 0 || c.Temperature > 2:
		return fmt.Errorf("llm temperature %.2f out of range [0, 2]", c.Temperature)
	case c.MaxOutputTokens < 0:
		return errors.New("llm max output tokens must not be negative")
	}
	return nil
}
