package validation

import "github.com/movinture/latent-logic/agentloop"

// Tolerances are the acceptance thresholds for each comparator.
type Tolerances struct {
	MaxKm    float64      `json:"max_km" mapstructure:"max_km"`
	MaxDiffC float64      `json:"max_diff_c" mapstructure:"max_diff_c"`
	MaxDiff  float64      `json:"max_diff" mapstructure:"max_diff"`
	ISS      ISSAllowance `json:"iss" mapstructure:"iss"`
}

// DefaultTolerances returns the thresholds used when configuration is
// silent.
func DefaultTolerances() Tolerances {
	return Tolerances{
		MaxKm:    1.0,
		MaxDiffC: 3.0,
		MaxDiff:  0.01,
		ISS: ISSAllowance{
			BaseKm:      250,
			KmPerSecond: 7.66,
			MaxKm:       5000,
		},
	}
}

// ForPrompt applies a prompt's overrides.
func (t Tolerances) ForPrompt(o agentloop.ValidationOverrides) Tolerances {
	if o.MaxKm != nil {
		t.MaxKm = *o.MaxKm
	}
	if o.MaxDiffC != nil {
		t.MaxDiffC = *o.MaxDiffC
	}
	if o.MaxDiff != nil {
		t.MaxDiff = *o.MaxDiff
	}
	return t
}
