package agentloop

// PromptType selects the ground-truth provider and comparator for a prompt.
type PromptType string

const (
	PromptWeather      PromptType = "weather"
	PromptTemperature  PromptType = "temperature"
	PromptLocation     PromptType = "location"
	PromptISS          PromptType = "iss"
	PromptExchangeRate PromptType = "exchange_rate"
)

// Known reports whether t is one of the prompt types the harness understands.
func (t PromptType) Known() bool {
	switch t {
	case PromptWeather, PromptTemperature, PromptLocation, PromptISS, PromptExchangeRate:
		return true
	}
	return false
}

// ValidationOverrides replaces configured tolerances for a single prompt.
type ValidationOverrides struct {
	MaxKm    *float64 `json:"max_km,omitempty" yaml:"max_km,omitempty"`
	MaxDiffC *float64 `json:"max_diff_c,omitempty" yaml:"max_diff_c,omitempty"`
	MaxDiff  *float64 `json:"max_diff,omitempty" yaml:"max_diff,omitempty"`
}

// Prompt is one evaluation question. It is identified by (ID, Version).
type Prompt struct {
	ID      string     `json:"id" yaml:"id"`
	Type    PromptType `json:"type" yaml:"type"`
	Text    string     `json:"text" yaml:"text"`
	Version string     `json:"version" yaml:"version"`

	// Query is the place or address used for geocoding and weather lookups.
	// When empty, Text is used.
	Query string `json:"query,omitempty" yaml:"query,omitempty"`
	// Base and Quote name the currency pair for exchange_rate prompts.
	Base  string `json:"base,omitempty" yaml:"base,omitempty"`
	Quote string `json:"quote,omitempty" yaml:"quote,omitempty"`

	Validation ValidationOverrides `json:"validation,omitempty" yaml:"validation,omitempty"`
}

// LookupQuery returns the text sent to the geocoding provider.
func (p Prompt) LookupQuery() string {
	if p.Query != "" {
		return p.Query
	}
	return p.Text
}

// PromptSet is a versioned list of prompts.
type PromptSet struct {
	Version string   `json:"version" yaml:"version"`
	Prompts []Prompt `json:"prompts" yaml:"prompts"`
}

// IDs returns the prompt ids in set order.
func (s PromptSet) IDs() []string {
	ids := make([]string, len(s.Prompts))
	for i, p := range s.Prompts {
		ids[i] = p.ID
	}
	return ids
}

// Get returns the prompt with the given id.
func (s PromptSet) Get(id string) (Prompt, bool) {
	for _, p := range s.Prompts {
		if p.ID == id {
			return p, true
		}
	}
	return Prompt{}, false
}
