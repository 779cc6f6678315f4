package validation

// Provenance labels how an answer was produced and whether it held up.
type Provenance string

const (
	ProvenanceParametric           Provenance = "parametric"
	ProvenanceToolAssisted         Provenance = "tool-assisted"
	ProvenanceHybridOrFailed       Provenance = "hybrid_or_failed"
	ProvenanceUnverifiedParametric Provenance = "unverified_parametric"
	ProvenanceUnverifiedToolUsed   Provenance = "unverified_tool_used"
	ProvenanceParametricFailed     Provenance = "parametric_failed"
)

// Provenances lists every label in a stable order.
var Provenances = []Provenance{
	ProvenanceParametric,
	ProvenanceToolAssisted,
	ProvenanceHybridOrFailed,
	ProvenanceUnverifiedParametric,
	ProvenanceUnverifiedToolUsed,
	ProvenanceParametricFailed,
}

// Classify maps (toolUsed, verdict) to its label. It is total over both
// inputs.
func Classify(toolUsed bool, v Verdict) Provenance {
	switch {
	case v == Valid && toolUsed:
		return ProvenanceToolAssisted
	case v == Valid:
		return ProvenanceParametric
	case v == Invalid && toolUsed:
		return ProvenanceHybridOrFailed
	case v == Invalid:
		return ProvenanceParametricFailed
	case toolUsed:
		return ProvenanceUnverifiedToolUsed
	default:
		return ProvenanceUnverifiedParametric
	}
}
