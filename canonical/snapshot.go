package canonical

import (
	"sort"

	"github.com/movinture/latent-logic/agentloop"
)

// Coordinates is a WGS84 position in decimal degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// TracePoint is one timestamped satellite position.
type TracePoint struct {
	TimestampUnix int64   `json:"timestamp_unix"`
	Lat           float64 `json:"lat"`
	Lon           float64 `json:"lon"`
}

// Entry is the ground truth for one prompt. Only the fields relevant to
// Type are set.
type Entry struct {
	Type  agentloop.PromptType `json:"type"`
	Query string               `json:"query,omitempty"`

	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
	TempC *float64 `json:"temp_c,omitempty"`

	Base  string   `json:"base,omitempty"`
	Quote string   `json:"quote,omitempty"`
	Rate  *float64 `json:"rate,omitempty"`

	Trace []TracePoint `json:"trace,omitempty"`

	Providers []string `json:"providers,omitempty"`
}

// Coordinates returns the entry position when both components are set.
func (e Entry) Coordinates() (Coordinates, bool) {
	if e.Lat == nil || e.Lon == nil {
		return Coordinates{}, false
	}
	return Coordinates{Lat: *e.Lat, Lon: *e.Lon}, true
}

// Failure records why an entry is absent.
type Failure struct {
	PromptID string               `json:"prompt_id"`
	Type     agentloop.PromptType `json:"type"`
	Reason   string               `json:"reason"`
}

// Snapshot is the immutable ground truth for one prompt-set version,
// identified by (PromptVersion, FetchedAtUnix).
type Snapshot struct {
	PromptVersion string           `json:"prompt_version"`
	FetchedAtUnix int64            `json:"fetched_at_unix"`
	AsOfUnix      int64            `json:"as_of_unix"`
	Entries       map[string]Entry `json:"entries"`
	Failures      []Failure        `json:"failures,omitempty"`
}

// Entry returns the ground truth for a prompt id.
func (s *Snapshot) Entry(promptID string) (Entry, bool) {
	if s == nil {
		return Entry{}, false
	}
	e, ok := s.Entries[promptID]
	return e, ok
}

// PromptIDs returns the ids with an entry, sorted.
func (s *Snapshot) PromptIDs() []string {
	if s == nil {
		return nil
	}
	ids := make([]string, 0, len(s.Entries))
	for id := range s.Entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func float64Ptr(v float64) *float64 { return &v }
