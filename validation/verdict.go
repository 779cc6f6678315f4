package validation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Verdict is the tri-state outcome of a validation. The zero value is
// Unverified.
type Verdict int8

const (
	Unverified Verdict = iota
	Valid
	Invalid
)

// VerdictOf converts a boolean comparison result.
func VerdictOf(ok bool) Verdict {
	if ok {
		return Valid
	}
	return Invalid
}

// Verified reports whether the verdict is boolean.
func (v Verdict) Verified() bool { return v == Valid || v == Invalid }

// Bool returns nil for Unverified.
func (v Verdict) Bool() *bool {
	switch v {
	case Valid:
		t := true
		return &t
	case Invalid:
		f := false
		return &f
	}
	return nil
}

func (v Verdict) String() string {
	switch v {
	case Valid:
		return "true"
	case Invalid:
		return "false"
	}
	return "null"
}

// MarshalJSON encodes the verdict as true, false or null.
func (v Verdict) MarshalJSON() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalJSON accepts true, false or null.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "true":
		*v = Valid
	case "false":
		*v = Invalid
	case "null":
		*v = Unverified
	default:
		var raw interface{}
		_ = json.Unmarshal(data, &raw)
		return fmt.Errorf("validation: invalid verdict %v", raw)
	}
	return nil
}
