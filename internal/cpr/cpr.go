// Package cpr implements Compressed Position Reporting decoding: the
// globally unambiguous even/odd algorithm and the locally-referenced
// fallback, for both the airborne and surface regimes.
package cpr

import "math"

const (
	cellScale = 131072.0 // 2^17: CPR lat/lon are 17-bit fields.

	airborneDlat0 = 360.0 / 60
	airborneDlat1 = 360.0 / 59
	surfaceDlat0  = 90.0 / 60
	surfaceDlat1  = 90.0 / 59

	// MaxAirborneNM and MaxSurfaceNM bound local/relative decoding
	// acceptance: a resolved position further than this from the
	// reference point is rejected as ambiguous rather than trusted.
	MaxAirborneNM = 180.0
	MaxSurfaceNM  = 45.0

	earthRadiusNM = 3440.065
)

// mod is the always-positive modulo used throughout CPR decoding.
func mod(a, b int) int {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}

// NL returns the number of longitude zones for a given latitude,
// using the precomputed table from 1090-WP-9-14. Symmetric about the
// equator.
func NL(lat float64) int {
	if lat < 0 {
		lat = -lat
	}
	switch {
	case lat < 10.47047130:
		return 59
	case lat < 14.82817437:
		return 58
	case lat < 18.18626357:
		return 57
	case lat < 21.02939493:
		return 56
	case lat < 23.54504487:
		return 55
	case lat < 25.82924707:
		return 54
	case lat < 27.93898710:
		return 53
	case lat < 29.91135686:
		return 52
	case lat < 31.77209708:
		return 51
	case lat < 33.53993436:
		return 50
	case lat < 35.22899598:
		return 49
	case lat < 36.85025108:
		return 48
	case lat < 38.41241892:
		return 47
	case lat < 39.92256684:
		return 46
	case lat < 41.38651832:
		return 45
	case lat < 42.80914012:
		return 44
	case lat < 44.19454951:
		return 43
	case lat < 45.54626723:
		return 42
	case lat < 46.86733252:
		return 41
	case lat < 48.16039128:
		return 40
	case lat < 49.42776439:
		return 39
	case lat < 50.67150166:
		return 38
	case lat < 51.89342469:
		return 37
	case lat < 53.09516153:
		return 36
	case lat < 54.27817472:
		return 35
	case lat < 55.44378444:
		return 34
	case lat < 56.59318756:
		return 33
	case lat < 57.72747354:
		return 32
	case lat < 58.84763776:
		return 31
	case lat < 59.95459277:
		return 30
	case lat < 61.04917774:
		return 29
	case lat < 62.13216659:
		return 28
	case lat < 63.20427479:
		return 27
	case lat < 64.26616523:
		return 26
	case lat < 65.31845310:
		return 25
	case lat < 66.36171008:
		return 24
	case lat < 67.39646774:
		return 23
	case lat < 68.42322022:
		return 22
	case lat < 69.44242631:
		return 21
	case lat < 70.45451075:
		return 20
	case lat < 71.45986473:
		return 19
	case lat < 72.45884545:
		return 18
	case lat < 73.45177442:
		return 17
	case lat < 74.43893416:
		return 16
	case lat < 75.42056257:
		return 15
	case lat < 76.39684391:
		return 14
	case lat < 77.36789461:
		return 13
	case lat < 78.33374083:
		return 12
	case lat < 79.29428225:
		return 11
	case lat < 80.24923213:
		return 10
	case lat < 81.19801349:
		return 9
	case lat < 82.13956981:
		return 8
	case lat < 83.07199445:
		return 7
	case lat < 83.99173563:
		return 6
	case lat < 84.89166191:
		return 5
	case lat < 85.75541621:
		return 4
	case lat < 86.53536998:
		return 3
	case lat < 87.00000000:
		return 2
	default:
		return 1
	}
}

func nFunction(lat float64, odd bool) int {
	nl := NL(lat)
	if odd {
		nl--
	}
	if nl < 1 {
		nl = 1
	}
	return nl
}

func dlonFunction(lat float64, odd bool, surface bool) float64 {
	base := 360.0
	if surface {
		base = 90.0
	}
	return base / float64(nFunction(lat, odd))
}

// Position is a decoded geographic position.
type Position struct {
	Lat, Lon float64
}

// Pair holds one even and one odd CPR position report from the same
// aircraft, as extracted from two consecutive position messages.
type Pair struct {
	EvenLat, EvenLon int
	OddLat, OddLon   int
	EvenIsNewer      bool
	Surface          bool
}

// DecodeGlobal applies the globally unambiguous CPR algorithm to an
// even/odd pair received within the same 10-second window. It
// returns ok == false if the two decoded latitudes give different
// longitude zone counts NL (an inconsistent pair, discarded rather
// than guessed at).
func DecodeGlobal(p Pair) (pos Position, ok bool) {
	dlat0, dlat1 := airborneDlat0, airborneDlat1
	if p.Surface {
		dlat0, dlat1 = surfaceDlat0, surfaceDlat1
	}

	lat0, lat1 := float64(p.EvenLat), float64(p.OddLat)
	lon0, lon1 := float64(p.EvenLon), float64(p.OddLon)

	j := int(math.Floor((59*lat0-60*lat1)/cellScale + 0.5))
	rlat0 := dlat0 * (float64(mod(j, 60)) + lat0/cellScale)
	rlat1 := dlat1 * (float64(mod(j, 59)) + lat1/cellScale)

	if rlat0 >= 270 {
		rlat0 -= 360
	}
	if rlat1 >= 270 {
		rlat1 -= 360
	}

	if NL(rlat0) != NL(rlat1) {
		return Position{}, false
	}

	var lat, lon float64
	if p.EvenIsNewer {
		ni := nFunction(rlat0, false)
		m := math.Floor((lon0*float64(NL(rlat0)-1)-lon1*float64(NL(rlat0)))/cellScale + 0.5)
		lon = dlonFunction(rlat0, false, p.Surface) * (float64(mod(int(m), ni)) + lon0/cellScale)
		lat = rlat0
	} else {
		ni := nFunction(rlat1, true)
		m := math.Floor((lon0*float64(NL(rlat1)-1)-lon1*float64(NL(rlat1)))/cellScale + 0.5)
		lon = dlonFunction(rlat1, true, p.Surface) * (float64(mod(int(m), ni)) + lon1/cellScale)
		lat = rlat1
	}

	if lon > 180 {
		lon -= 360
	}
	return Position{Lat: lat, Lon: lon}, true
}

// DecodeLocal decodes a single CPR-encoded raw lat/lon relative to a
// reference position (the aircraft's last known fix, or the
// receiver's configured location). It rejects the result (ok ==
// false, position left unchanged by the caller) unless
// it falls within MaxAirborneNM (or MaxSurfaceNM for surface reports)
// of the reference.
func DecodeLocal(rawLat, rawLon int, odd bool, ref Position, surface bool) (pos Position, ok bool) {
	dlat := airborneDlat0
	if odd {
		dlat = airborneDlat1
	}
	if surface {
		dlat = dlat / 4
	}

	j := int(math.Floor(ref.Lat/dlat)) + int(math.Floor(0.5+math.Mod(ref.Lat, dlat)/dlat-float64(rawLat)/cellScale))
	rlat := dlat * (float64(j) + float64(rawLat)/cellScale)

	dlon := dlonFunction(rlat, odd, surface)
	m := int(math.Floor(ref.Lon/dlon)) + int(math.Floor(0.5+math.Mod(ref.Lon, dlon)/dlon-float64(rawLon)/cellScale))
	rlon := dlon * (float64(m) + float64(rawLon)/cellScale)

	got := Position{Lat: rlat, Lon: rlon}
	maxNM := MaxAirborneNM
	if surface {
		maxNM = MaxSurfaceNM
	}
	if haversineNM(ref, got) > maxNM {
		return Position{}, false
	}
	return got, true
}

// haversineNM returns the great-circle distance between two positions
// in nautical miles.
func haversineNM(a, b Position) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dlat := (b.Lat - a.Lat) * math.Pi / 180
	dlon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dlat/2)*math.Sin(dlat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dlon/2)*math.Sin(dlon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusNM * c
}
