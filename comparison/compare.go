// Package comparison aggregates validated runs of the two frameworks over a
// cohort into a deterministic Summary.
package comparison

import (
	"math"
	"sort"

	"github.com/movinture/latent-logic/agentloop"
	"github.com/movinture/latent-logic/validation"
)

// Row is one validated run as seen by the comparison.
type Row struct {
	Model      string                      `json:"model"`
	PromptID   string                      `json:"prompt_id"`
	Turns      int                         `json:"turns"`
	ToolCalls  int                         `json:"tool_calls"`
	Status     agentloop.RunStatus         `json:"status"`
	Validation validation.ValidationRecord `json:"validation"`
}

// RowFrom pairs a run record with its sidecar.
func RowFrom(rec *agentloop.AgentRunRecord, v validation.ValidationRecord) Row {
	return Row{
		Model:      rec.Model,
		PromptID:   rec.PromptID,
		Turns:      rec.Turns,
		ToolCalls:  len(rec.ToolCalls),
		Status:     rec.Status,
		Validation: v,
	}
}

// Outcome of one jointly covered (model, prompt) pair.
type Outcome string

const (
	ScratchWin Outcome = "scratch_win"
	StrandsWin Outcome = "strands_win"
	Tie        Outcome = "tie"
)

// PairOutcome compares both frameworks on one (model, prompt).
type PairOutcome struct {
	Model    string             `json:"model"`
	PromptID string             `json:"prompt_id"`
	Scratch  validation.Verdict `json:"scratch_valid"`
	Strands  validation.Verdict `json:"strands_valid"`
	Outcome  Outcome            `json:"outcome"`
}

// PairOutcomeOf decides a pair. A framework wins only when it alone is
// valid; every other combination, unverified included, is a tie.
func PairOutcomeOf(scratch, strands validation.Verdict) Outcome {
	switch {
	case scratch == validation.Valid && strands != validation.Valid:
		return ScratchWin
	case strands == validation.Valid && scratch != validation.Valid:
		return StrandsWin
	}
	return Tie
}

// Missing is an expected (framework, model, prompt) with no record.
type Missing struct {
	Framework string `json:"framework"`
	Model     string `json:"model"`
	PromptID  string `json:"prompt_id"`
}

// Coverage counts expected and present (model, prompt) pairs.
type Coverage struct {
	ExpectedPairs int `json:"expected_pairs"`
	PresentPairs  int `json:"present_pairs"`
}

// ModelStats aggregates one framework's runs for one model.
type ModelStats struct {
	Runs              int                           `json:"runs"`
	VerifiedRuns      int                           `json:"verified_runs"`
	ValidRuns         int                           `json:"valid_runs"`
	InvalidRuns       int                           `json:"invalid_runs"`
	UnverifiedRuns    int                           `json:"unverified_runs"`
	ValidRateVerified *float64                      `json:"valid_rate_verified"`
	AvgAssistantTurns float64                       `json:"avg_assistant_turns"`
	AvgToolCalls      float64                       `json:"avg_tool_calls"`
	Provenance        map[validation.Provenance]int `json:"provenance"`
	FailReasons       map[string]int                `json:"fail_reasons"`
}

// ModelSummary holds both frameworks' stats for one model.
type ModelSummary struct {
	Model   string     `json:"model"`
	Scratch ModelStats `json:"scratch"`
	Strands ModelStats `json:"strands"`
}

// FrameworkTotals aggregates one framework over the whole cohort.
type FrameworkTotals struct {
	Runs              int      `json:"runs"`
	VerifiedRuns      int      `json:"verified_runs"`
	ValidRuns         int      `json:"valid_runs"`
	ValidRateVerified *float64 `json:"valid_rate_verified"`
}

// Overall is the cohort headline.
type Overall struct {
	Scratch        FrameworkTotals `json:"scratch"`
	Strands        FrameworkTotals `json:"strands"`
	ScratchWins    int             `json:"scratch_wins"`
	StrandsWins    int             `json:"strands_wins"`
	Ties           int             `json:"ties"`
	JointlyCovered int             `json:"jointly_covered"`
}

// FrameworkCoverage holds coverage for both frameworks.
type FrameworkCoverage struct {
	Scratch Coverage `json:"scratch"`
	Strands Coverage `json:"strands"`
}

// Summary is the machine-readable comparison of a cohort. GeneratedAtUnix
// and the run group fields are stamped by the caller.
type Summary struct {
	GeneratedAtUnix int64             `json:"generated_at_unix,omitempty"`
	ScratchRunGroup string            `json:"scratch_run_group,omitempty"`
	StrandsRunGroup string            `json:"strands_run_group,omitempty"`
	Models          []string          `json:"models"`
	Prompts         []string          `json:"prompts"`
	Overall         Overall           `json:"overall"`
	ByModel         []ModelSummary    `json:"by_model"`
	Pairwise        []PairOutcome     `json:"pairwise"`
	Missing         []Missing         `json:"missing"`
	Coverage        FrameworkCoverage `json:"coverage"`
}

type pairKey struct{ model, prompt string }

// index keeps the last row per in-scope (model, prompt).
func index(rows []Row, models, prompts map[string]bool) map[pairKey]Row {
	out := make(map[pairKey]Row, len(rows))
	for _, r := range rows {
		if !models[r.Model] || !prompts[r.PromptID] {
			continue
		}
		out[pairKey{r.Model, r.PromptID}] = r
	}
	return out
}

func set(items []string) map[string]bool {
	m := make(map[string]bool, len(items))
	for _, s := range items {
		m[s] = true
	}
	return m
}

// dedupe drops repeated names, keeping first positions.
func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, s := range items {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Compare aggregates scratch and strands rows over models × prompts. Rows
// outside that grid are ignored; for repeated (model, prompt) rows the last
// one wins. All orderings follow the models and prompts arguments.
func Compare(scratch, strands []Row, models, prompts []string) Summary {
	models, prompts = dedupe(models), dedupe(prompts)
	ms, ps := set(models), set(prompts)
	sc, st := index(scratch, ms, ps), index(strands, ms, ps)

	s := Summary{
		Models:   models,
		Prompts:  prompts,
		ByModel:  make([]ModelSummary, 0, len(models)),
		Pairwise: []PairOutcome{},
		Missing:  []Missing{},
	}
	expected := len(models) * len(prompts)
	s.Coverage = FrameworkCoverage{
		Scratch: Coverage{ExpectedPairs: expected, PresentPairs: len(sc)},
		Strands: Coverage{ExpectedPairs: expected, PresentPairs: len(st)},
	}

	var scAll, stAll []Row
	for _, m := range models {
		var scRows, stRows []Row
		for _, p := range prompts {
			k := pairKey{m, p}
			a, okA := sc[k]
			b, okB := st[k]
			if okA {
				scRows = append(scRows, a)
			}
			if okB {
				stRows = append(stRows, b)
			}
			if okA && okB {
				o := PairOutcomeOf(a.Validation.Valid, b.Validation.Valid)
				s.Pairwise = append(s.Pairwise, PairOutcome{
					Model: m, PromptID: p,
					Scratch: a.Validation.Valid, Strands: b.Validation.Valid,
					Outcome: o,
				})
				switch o {
				case ScratchWin:
					s.Overall.ScratchWins++
				case StrandsWin:
					s.Overall.StrandsWins++
				default:
					s.Overall.Ties++
				}
			}
		}
		s.ByModel = append(s.ByModel, ModelSummary{Model: m, Scratch: stats(scRows), Strands: stats(stRows)})
		scAll = append(scAll, scRows...)
		stAll = append(stAll, stRows...)
	}
	s.Overall.JointlyCovered = len(s.Pairwise)
	s.Overall.Scratch = totals(scAll)
	s.Overall.Strands = totals(stAll)

	s.Missing = append(s.Missing, missing(agentloop.ScratchFrameworkName, sc, models, prompts)...)
	s.Missing = append(s.Missing, missing(agentloop.StrandsFrameworkName, st, models, prompts)...)
	return s
}

func missing(framework string, present map[pairKey]Row, models, prompts []string) []Missing {
	var out []Missing
	for _, m := range models {
		for _, p := range prompts {
			if _, ok := present[pairKey{m, p}]; !ok {
				out = append(out, Missing{Framework: framework, Model: m, PromptID: p})
			}
		}
	}
	return out
}

func rate(valid, verified int) *float64 {
	if verified == 0 {
		return nil
	}
	r := round(float64(valid)/float64(verified), 3)
	return &r
}

func round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

func stats(rows []Row) ModelStats {
	st := ModelStats{
		Provenance:  map[validation.Provenance]int{},
		FailReasons: map[string]int{},
	}
	var turns, calls int
	for _, r := range rows {
		st.Runs++
		turns += r.Turns
		calls += r.ToolCalls
		switch r.Validation.Valid {
		case validation.Valid:
			st.VerifiedRuns++
			st.ValidRuns++
		case validation.Invalid:
			st.VerifiedRuns++
			st.InvalidRuns++
		default:
			st.UnverifiedRuns++
		}
		if r.Validation.Provenance != "" {
			st.Provenance[r.Validation.Provenance]++
		}
		// Unverified reasons stay out of the failure tally.
		if r.Validation.Valid == validation.Invalid && r.Validation.FailureReason != "" {
			st.FailReasons[r.Validation.FailureReason]++
		}
	}
	st.ValidRateVerified = rate(st.ValidRuns, st.VerifiedRuns)
	if st.Runs > 0 {
		st.AvgAssistantTurns = round(float64(turns)/float64(st.Runs), 2)
		st.AvgToolCalls = round(float64(calls)/float64(st.Runs), 2)
	}
	return st
}

func totals(rows []Row) FrameworkTotals {
	var t FrameworkTotals
	for _, r := range rows {
		t.Runs++
		if r.Validation.Valid.Verified() {
			t.VerifiedRuns++
		}
		if r.Validation.Valid == validation.Valid {
			t.ValidRuns++
		}
	}
	t.ValidRateVerified = rate(t.ValidRuns, t.VerifiedRuns)
	return t
}

// Key identifies a (model, prompt) pair present in a run group.
type Key struct {
	Model    string
	PromptID string
}

// SelectBestRunGroup returns the candidate covering the most expected
// (model, prompt) pairs, breaking ties by the lexically greatest id. It
// returns "" when there are no candidates.
func SelectBestRunGroup(candidates map[string][]Key, models, prompts []string) (string, int) {
	ms, ps := set(models), set(prompts)
	ids := make([]string, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	best, bestCount := "", -1
	for _, id := range ids {
		covered := map[pairKey]bool{}
		for _, k := range candidates[id] {
			if ms[k.Model] && ps[k.PromptID] {
				covered[pairKey{k.Model, k.PromptID}] = true
			}
		}
		// ids ascend, so >= lets a later id win a tie.
		if len(covered) >= bestCount {
			best, bestCount = id, len(covered)
		}
	}
	if bestCount < 0 {
		bestCount = 0
	}
	return best, bestCount
}
