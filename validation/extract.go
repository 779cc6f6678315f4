package validation

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/movinture/latent-logic/canonical"
)

// Failure reasons for verified-but-wrong outcomes.
const (
	ReasonEmptyOutput         = "empty_output"
	ReasonNoTemperatureFound  = "no_temperature_found"
	ReasonNoCoordinatesFound  = "no_coordinates_found"
	ReasonNoRateFound         = "no_rate_found"
	ReasonOutOfTolerance      = "out_of_tolerance"
	ReasonUnsupportedType     = "unsupported_prompt_type"
	ReasonNoCanonicalEntry    = "no_canonical_entry"
	ReasonEmptyCanonicalTrace = "empty_canonical_trace"
	// ReasonRunError marks a run that ended on a provider failure, timeout
	// or cancellation. It is unverified.
	ReasonRunError = "run_error"
	// ReasonTurnLimit marks a run that exhausted its turn budget without
	// answering. It is invalid.
	ReasonTurnLimit = "turn_limit"
)

// ExtractionError reports that model output held no value of the expected
// kind. Reason is one of the failure reason codes.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "extraction failed: " + e.Reason
}

var (
	temperatureRe = regexp.MustCompile(`(?i)(-?\d+(?:\.\d+)?)\s*°?\s*([CF])`)
	latitudeRe    = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*°?\s*([NS])`)
	longitudeRe   = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*°?\s*([EW])`)
	decimalRe     = regexp.MustCompile(`-?\d+\.\d+`)
)

// ExtractTemperatureC returns the first temperature in text, in Celsius.
func ExtractTemperatureC(text string) (float64, error) {
	m := temperatureRe.FindStringSubmatch(text)
	if m == nil {
		return 0, &ExtractionError{Reason: ReasonNoTemperatureFound}
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, &ExtractionError{Reason: ReasonNoTemperatureFound}
	}
	if strings.EqualFold(m[2], "F") {
		value = (value - 32.0) * 5.0 / 9.0
	}
	return value, nil
}

// ExtractCoordinates prefers hemisphere-lettered values ("40.7° N, 74.0° W")
// and falls back to the first two decimals in text.
func ExtractCoordinates(text string) (canonical.Coordinates, error) {
	lat, latOK := hemisphere(latitudeRe, text, "N")
	lon, lonOK := hemisphere(longitudeRe, text, "E")
	if latOK && lonOK {
		return checkRange(canonical.Coordinates{Lat: lat, Lon: lon})
	}

	decimals := decimalRe.FindAllString(text, 2)
	if len(decimals) < 2 {
		return canonical.Coordinates{}, &ExtractionError{Reason: ReasonNoCoordinatesFound}
	}
	lat, err1 := strconv.ParseFloat(decimals[0], 64)
	lon, err2 := strconv.ParseFloat(decimals[1], 64)
	if err1 != nil || err2 != nil {
		return canonical.Coordinates{}, &ExtractionError{Reason: ReasonNoCoordinatesFound}
	}
	return checkRange(canonical.Coordinates{Lat: lat, Lon: lon})
}

func hemisphere(re *regexp.Regexp, text, positive string) (float64, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if !strings.EqualFold(m[2], positive) {
		v = -v
	}
	return v, true
}

func checkRange(c canonical.Coordinates) (canonical.Coordinates, error) {
	if c.Lat < -90 || c.Lat > 90 || c.Lon < -180 || c.Lon > 180 {
		return canonical.Coordinates{}, &ExtractionError{Reason: ReasonNoCoordinatesFound}
	}
	return c, nil
}

// ExtractRate returns the number adjacent to the quote currency code
// ("0.92 EUR" or "EUR 0.92"), else the first decimal in text.
func ExtractRate(text, quote string) (float64, error) {
	if quote != "" {
		code := regexp.QuoteMeta(strings.ToUpper(quote))
		before := regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*` + code + `\b`)
		after := regexp.MustCompile(`(?i)\b` + code + `\s*(\d+(?:\.\d+)?)`)
		for _, re := range []*regexp.Regexp{before, after} {
			if m := re.FindStringSubmatch(text); m != nil {
				if v, err := strconv.ParseFloat(m[1], 64); err == nil {
					return v, nil
				}
			}
		}
	}
	if m := decimalRe.FindString(text); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			return v, nil
		}
	}
	return 0, &ExtractionError{Reason: ReasonNoRateFound}
}
