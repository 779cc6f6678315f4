package validation

import (
	"math"
	"sort"

	"github.com/movinture/latent-logic/canonical"
)

const earthRadiusKm = 6371.0

// HaversineKm is the great-circle distance between a and b.
func HaversineKm(a, b canonical.Coordinates) float64 {
	p1 := a.Lat * math.Pi / 180
	p2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(p1)*math.Cos(p2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	h = math.Min(1, math.Max(0, h))
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// TracePosition locates evalUnix on a satellite trace. Inside the trace it
// interpolates linearly between the bracketing points, taking the short way
// across the antimeridian; outside it returns the nearest end point. gap is
// the distance in seconds to the nearest trace timestamp. ok is false for an
// empty trace.
func TracePosition(trace []canonical.TracePoint, evalUnix int64) (pos canonical.Coordinates, gap int64, ok bool) {
	if len(trace) == 0 {
		return canonical.Coordinates{}, 0, false
	}
	pts := trace
	if !sort.SliceIsSorted(pts, func(i, j int) bool { return pts[i].TimestampUnix < pts[j].TimestampUnix }) {
		pts = append([]canonical.TracePoint(nil), trace...)
		sort.SliceStable(pts, func(i, j int) bool { return pts[i].TimestampUnix < pts[j].TimestampUnix })
	}

	first, last := pts[0], pts[len(pts)-1]
	if evalUnix <= first.TimestampUnix {
		return point(first), first.TimestampUnix - evalUnix, true
	}
	if evalUnix >= last.TimestampUnix {
		return point(last), evalUnix - last.TimestampUnix, true
	}

	// first.ts < evalUnix < last.ts, so 1 <= i < len(pts).
	i := sort.Search(len(pts), func(i int) bool { return pts[i].TimestampUnix >= evalUnix })
	hi := pts[i]
	if hi.TimestampUnix == evalUnix {
		return point(hi), 0, true
	}
	lo := pts[i-1]

	frac := float64(evalUnix-lo.TimestampUnix) / float64(hi.TimestampUnix-lo.TimestampUnix)
	dLon := hi.Lon - lo.Lon
	if dLon > 180 {
		dLon -= 360
	} else if dLon < -180 {
		dLon += 360
	}
	lon := lo.Lon + frac*dLon
	if lon > 180 {
		lon -= 360
	} else if lon < -180 {
		lon += 360
	}
	pos = canonical.Coordinates{Lat: lo.Lat + frac*(hi.Lat-lo.Lat), Lon: lon}

	gap = evalUnix - lo.TimestampUnix
	if d := hi.TimestampUnix - evalUnix; d < gap {
		gap = d
	}
	return pos, gap, true
}

func point(p canonical.TracePoint) canonical.Coordinates {
	return canonical.Coordinates{Lat: p.Lat, Lon: p.Lon}
}

// ISSAllowance bounds the accepted ISS distance error as the gap to the
// nearest trace point grows.
type ISSAllowance struct {
	BaseKm      float64 `json:"base_km" mapstructure:"base_km"`
	KmPerSecond float64 `json:"km_per_second" mapstructure:"km_per_second"`
	MaxKm       float64 `json:"max_km" mapstructure:"max_km"`
}

// Km returns min(BaseKm + KmPerSecond*gap, MaxKm). A non-positive MaxKm
// leaves the allowance unbounded.
func (a ISSAllowance) Km(gapSeconds int64) float64 {
	if gapSeconds < 0 {
		gapSeconds = -gapSeconds
	}
	km := a.BaseKm + a.KmPerSecond*float64(gapSeconds)
	if a.MaxKm > 0 && km > a.MaxKm {
		return a.MaxKm
	}
	return km
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
