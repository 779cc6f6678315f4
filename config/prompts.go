package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/movinture/latent-logic/agentloop"
)

// promptFile is the on-disk shape. "name" and "location" are accepted as
// aliases of "id" and "query".
type promptFile struct {
	Version string        `json:"version" yaml:"version"`
	Prompts []promptEntry `json:"prompts" yaml:"prompts"`
}

type promptEntry struct {
	ID       string                        `json:"id" yaml:"id"`
	Name     string                        `json:"name" yaml:"name"`
	Type     string                        `json:"type" yaml:"type"`
	Text     string                        `json:"text" yaml:"text"`
	Version  string                        `json:"version" yaml:"version"`
	Query    string                        `json:"query" yaml:"query"`
	Location string                        `json:"location" yaml:"location"`
	Base     string                        `json:"base" yaml:"base"`
	Quote    string                        `json:"quote" yaml:"quote"`
	Valid    agentloop.ValidationOverrides `json:"validation" yaml:"validation"`
}

// LoadPromptSet reads a prompt set from a .json, .yaml or .yml file.
func LoadPromptSet(path string) (agentloop.PromptSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return agentloop.PromptSet{}, fmt.Errorf("failed to read prompt set: %w", err)
	}
	set, err := ParsePromptSet(data, filepath.Ext(path))
	if err != nil {
		return agentloop.PromptSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return set, nil
}

// ParsePromptSet decodes a prompt set. ext selects JSON for ".json" and
// YAML otherwise.
func ParsePromptSet(data []byte, ext string) (agentloop.PromptSet, error) {
	var raw promptFile
	if strings.EqualFold(ext, ".json") {
		if err := json.Unmarshal(data, &raw); err != nil {
			return agentloop.PromptSet{}, fmt.Errorf("failed to parse prompt set: %w", err)
		}
	} else if err := yaml.Unmarshal(data, &raw); err != nil {
		return agentloop.PromptSet{}, fmt.Errorf("failed to parse prompt set: %w", err)
	}

	set := agentloop.PromptSet{Version: strings.TrimSpace(raw.Version)}
	if set.Version == "" {
		set.Version = "unknown"
	}
	seen := make(map[string]bool, len(raw.Prompts))
	for i, e := range raw.Prompts {
		id := firstNonEmpty(e.ID, e.Name)
		if id == "" {
			return agentloop.PromptSet{}, &ConfigError{Field: fmt.Sprintf("prompts[%d].id", i), Message: "must not be empty"}
		}
		if seen[id] {
			return agentloop.PromptSet{}, &ConfigError{Field: fmt.Sprintf("prompts[%d].id", i), Message: fmt.Sprintf("duplicate id %q", id)}
		}
		seen[id] = true
		if e.Type == "" {
			return agentloop.PromptSet{}, &ConfigError{Field: fmt.Sprintf("prompts[%d].type", i), Message: "must not be empty"}
		}
		if e.Text == "" {
			return agentloop.PromptSet{}, &ConfigError{Field: fmt.Sprintf("prompts[%d].text", i), Message: "must not be empty"}
		}
		set.Prompts = append(set.Prompts, agentloop.Prompt{
			ID:         id,
			Type:       agentloop.PromptType(strings.ToLower(e.Type)),
			Text:       e.Text,
			Version:    firstNonEmpty(e.Version, set.Version),
			Query:      firstNonEmpty(e.Query, e.Location),
			Base:       strings.ToUpper(e.Base),
			Quote:      strings.ToUpper(e.Quote),
			Validation: e.Valid,
		})
	}
	return set, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
