package domain

import (
	"fmt"
	"strings"
)

// Provider kinds understood by the adapter registry.
const (
	ProviderAzure        = "azure"
	ProviderGemini       = "gemini"
	ProviderPollinations = "pollinations"
	ProviderReplicate    = "replicate"
)

// ProviderConfig selects the adapter serving a template.
type ProviderConfig struct {
	Kind  string         `json:"provider" yaml:"provider"`
	Model string         `json:"model" yaml:"model"`
	Mode  GenerationMode `json:"mode" yaml:"mode"`
}

// Template resolves a style to a prompt and provider configuration.
type Template struct {
	ID                 string         `json:"id" yaml:"id"`
	Name               string         `json:"name" yaml:"name"`
	Prompt             string         `json:"prompt_template" yaml:"prompt_template"`
	Provider           ProviderConfig `json:"provider_config" yaml:",inline"`
	EnhanceWithSubject bool           `json:"enhance_with_subject" yaml:"enhance_with_subject"`
}

// DefaultMode returns the completion strategy a provider kind supports.
func DefaultMode(kind string) (GenerationMode, bool) {
	switch kind {
	case ProviderAzure, ProviderGemini:
		return ModeBlocking, true
	case ProviderPollinations, ProviderReplicate:
		return ModeNonBlocking, true
	default:
		return "", false
	}
}

// Normalize fills the mode from the provider kind and rejects inconsistent configuration.
func (t *Template) Normalize() error {
	t.ID = strings.TrimSpace(t.ID)
	t.Provider.Kind = strings.ToLower(strings.TrimSpace(t.Provider.Kind))
	t.Provider.Model = strings.TrimSpace(t.Provider.Model)
	if t.ID == "" {
		return fmt.Errorf("template: id is required")
	}
	if strings.TrimSpace(t.Prompt) == "" {
		return fmt.Errorf("template %s: prompt is required", t.ID)
	}
	mode, ok := DefaultMode(t.Provider.Kind)
	if !ok {
		return fmt.Errorf("template %s: unknown provider %q", t.ID, t.Provider.Kind)
	}
	if t.Provider.Mode == "" {
		t.Provider.Mode = mode
	}
	if t.Provider.Mode != mode {
		return fmt.Errorf("template %s: provider %s does not support mode %s", t.ID, t.Provider.Kind, t.Provider.Mode)
	}
	return nil
}
