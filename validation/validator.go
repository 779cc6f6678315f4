package validation

import (
	"errors"
	"strings"

	"github.com/movinture/latent-logic/agentloop"
	"github.com/movinture/latent-logic/canonical"
)

// MetricName names the quantity compared against ground truth.
type MetricName string

const (
	MetricDistanceKm MetricName = "distance_km"
	MetricDiffC      MetricName = "diff_c"
	MetricDiffRate   MetricName = "diff_rate"
)

// Metric is a rounded comparison measurement.
type Metric struct {
	Name  MetricName `json:"name"`
	Value float64    `json:"value"`
}

// Details carries the expected and observed values behind a verdict.
type Details struct {
	ExpectedLat    *float64 `json:"expected_lat,omitempty"`
	ExpectedLon    *float64 `json:"expected_lon,omitempty"`
	PredictedLat   *float64 `json:"predicted_lat,omitempty"`
	PredictedLon   *float64 `json:"predicted_lon,omitempty"`
	ExpectedTempC  *float64 `json:"expected_temp_c,omitempty"`
	PredictedTempC *float64 `json:"predicted_temp_c,omitempty"`
	ExpectedRate   *float64 `json:"expected_rate,omitempty"`
	PredictedRate  *float64 `json:"predicted_rate,omitempty"`
	// Threshold is the tolerance the metric was held to; for iss it is the
	// gap-dependent allowance.
	Threshold  *float64 `json:"threshold,omitempty"`
	GapSeconds *int64   `json:"trace_gap_seconds,omitempty"`
	// RunErrorKind is the error kind of a run that ended in error.
	RunErrorKind string `json:"run_error_kind,omitempty"`
}

// Outcome is the result of comparing one output against one entry.
type Outcome struct {
	Valid         Verdict
	Metric        *Metric
	FailureReason string
	Details       Details
}

// Evaluate compares output against the ground-truth entry for a prompt of
// type pt. A nil entry yields Unverified. Extraction failures yield Invalid
// with a failure reason; Evaluate never panics on malformed input.
func Evaluate(pt agentloop.PromptType, output string, entry *canonical.Entry, evalUnix int64, tol Tolerances) Outcome {
	if !pt.Known() {
		return Outcome{Valid: Unverified, FailureReason: ReasonUnsupportedType}
	}
	if entry == nil {
		return Outcome{Valid: Unverified, FailureReason: ReasonNoCanonicalEntry}
	}
	if pt == agentloop.PromptISS && len(entry.Trace) == 0 {
		return Outcome{Valid: Unverified, FailureReason: ReasonEmptyCanonicalTrace}
	}
	if strings.TrimSpace(output) == "" {
		return Outcome{Valid: Invalid, FailureReason: ReasonEmptyOutput}
	}

	switch pt {
	case agentloop.PromptLocation:
		expected, ok := entry.Coordinates()
		if !ok {
			return Outcome{Valid: Unverified, FailureReason: ReasonNoCanonicalEntry}
		}
		return compareDistance(output, expected, tol.MaxKm, nil)

	case agentloop.PromptISS:
		expected, gap, _ := TracePosition(entry.Trace, evalUnix)
		allowance := tol.ISS.Km(gap)
		return compareDistance(output, expected, allowance, &gap)

	case agentloop.PromptWeather, agentloop.PromptTemperature:
		if entry.TempC == nil {
			return Outcome{Valid: Unverified, FailureReason: ReasonNoCanonicalEntry}
		}
		predicted, err := ExtractTemperatureC(output)
		if err != nil {
			return extractionFailure(err)
		}
		diff := abs(predicted - *entry.TempC)
		return verdict(diff <= tol.MaxDiffC, Outcome{
			Metric: &Metric{Name: MetricDiffC, Value: round(diff, 2)},
			Details: Details{
				ExpectedTempC:  ptr(*entry.TempC),
				PredictedTempC: ptr(round(predicted, 2)),
				Threshold:      ptr(tol.MaxDiffC),
			},
		})

	case agentloop.PromptExchangeRate:
		if entry.Rate == nil {
			return Outcome{Valid: Unverified, FailureReason: ReasonNoCanonicalEntry}
		}
		predicted, err := ExtractRate(output, entry.Quote)
		if err != nil {
			return extractionFailure(err)
		}
		diff := abs(predicted - *entry.Rate)
		return verdict(diff <= tol.MaxDiff, Outcome{
			Metric: &Metric{Name: MetricDiffRate, Value: round(diff, 4)},
			Details: Details{
				ExpectedRate:  ptr(*entry.Rate),
				PredictedRate: ptr(predicted),
				Threshold:     ptr(tol.MaxDiff),
			},
		})
	}
	return Outcome{Valid: Unverified, FailureReason: ReasonUnsupportedType}
}

func compareDistance(output string, expected canonical.Coordinates, threshold float64, gap *int64) Outcome {
	predicted, err := ExtractCoordinates(output)
	if err != nil {
		return extractionFailure(err)
	}
	dist := HaversineKm(predicted, expected)
	return verdict(dist <= threshold, Outcome{
		Metric: &Metric{Name: MetricDistanceKm, Value: round(dist, 3)},
		Details: Details{
			ExpectedLat:  ptr(expected.Lat),
			ExpectedLon:  ptr(expected.Lon),
			PredictedLat: ptr(predicted.Lat),
			PredictedLon: ptr(predicted.Lon),
			Threshold:    ptr(round(threshold, 3)),
			GapSeconds:   gap,
		},
	})
}

func verdict(ok bool, o Outcome) Outcome {
	o.Valid = VerdictOf(ok)
	if !ok {
		o.FailureReason = ReasonOutOfTolerance
	}
	return o
}

func extractionFailure(err error) Outcome {
	reason := ReasonEmptyOutput
	var ee *ExtractionError
	if errors.As(err, &ee) {
		reason = ee.Reason
	}
	return Outcome{Valid: Invalid, FailureReason: reason}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func ptr[T any](v T) *T { return &v }

// ValidationRecord is the sidecar persisted next to an AgentRunRecord.
type ValidationRecord struct {
	RunGroup      string               `json:"run_group"`
	Framework     string               `json:"framework"`
	Model         string               `json:"model"`
	PromptID      string               `json:"prompt_id"`
	PromptType    agentloop.PromptType `json:"prompt_type"`
	PromptVersion string               `json:"prompt_version"`
	Valid         Verdict              `json:"valid"`
	Metric        *Metric              `json:"metric,omitempty"`
	Provenance    Provenance           `json:"provenance"`
	FailureReason string               `json:"failure_reason,omitempty"`
	ToolUsed      bool                 `json:"tool_used"`
	ToolNames     []string             `json:"tool_names"`
	EvalTimeUnix  int64                `json:"eval_time_unix"`
	Details       Details              `json:"details"`
	DataHints     DataHints            `json:"data_hints"`
}

// Validator validates run records against a canonical snapshot.
type Validator struct {
	Tolerances Tolerances
}

// NewValidator returns a Validator with tol.
func NewValidator(tol Tolerances) *Validator {
	return &Validator{Tolerances: tol}
}

// Validate derives the ValidationRecord for rec. The result depends only on
// its arguments. Runs that ended in error are unverified with run_error;
// runs that hit the turn budget are invalid with turn_limit. Neither is
// extracted from.
func (v *Validator) Validate(rec *agentloop.AgentRunRecord, prompt agentloop.Prompt, snap *canonical.Snapshot, evalUnix int64) ValidationRecord {
	tol := DefaultTolerances()
	if v != nil {
		tol = v.Tolerances
	}
	tol = tol.ForPrompt(prompt.Validation)

	var entry *canonical.Entry
	if e, ok := snap.Entry(prompt.ID); ok && (snap.PromptVersion == "" || prompt.Version == "" || snap.PromptVersion == prompt.Version) {
		entry = &e
	}

	var out Outcome
	switch rec.Status {
	case agentloop.StatusError:
		out = Outcome{Valid: Unverified, FailureReason: ReasonRunError}
		if rec.Error != nil {
			out.Details.RunErrorKind = rec.Error.Kind
		}
	case agentloop.StatusIncomplete:
		out = Outcome{Valid: Invalid, FailureReason: ReasonTurnLimit}
	default:
		out = Evaluate(prompt.Type, rec.FinalText, entry, evalUnix, tol)
	}
	toolNames := rec.ToolNames()
	if toolNames == nil {
		toolNames = []string{}
	}
	return ValidationRecord{
		RunGroup:      rec.RunGroup,
		Framework:     rec.Framework,
		Model:         rec.Model,
		PromptID:      rec.PromptID,
		PromptType:    prompt.Type,
		PromptVersion: prompt.Version,
		Valid:         out.Valid,
		Metric:        out.Metric,
		Provenance:    Classify(rec.ToolUsed(), out.Valid),
		FailureReason: out.FailureReason,
		ToolUsed:      rec.ToolUsed(),
		ToolNames:     toolNames,
		EvalTimeUnix:  evalUnix,
		Details:       out.Details,
		DataHints:     HintsFrom(rec),
	}
}
