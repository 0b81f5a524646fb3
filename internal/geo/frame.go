package geo

import "math"

// GeodeticFrame is a local tangent-plane origin. Degree lengths are derived
// from the reference latitude and recomputed whenever it changes.
type GeodeticFrame struct {
	RefLat  float64 `json:"refLat"`
	RefLon  float64 `json:"refLon"`
	MPerLat float64 `json:"mPerLat"`
	MPerLon float64 `json:"mPerLon"`
}

func NewGeodeticFrame(refLat, refLon float64) GeodeticFrame {
	phi := refLat * math.Pi / 180
	return GeodeticFrame{
		RefLat:  refLat,
		RefLon:  refLon,
		MPerLat: 111132.92 - 559.82*math.Cos(2*phi) + 1.175*math.Cos(4*phi) - 0.0023*math.Cos(6*phi),
		MPerLon: 111412.84*math.Cos(phi) - 93.5*math.Cos(3*phi) + 0.118*math.Cos(5*phi),
	}
}

// EastNorth returns local metres east and north of the reference.
func (f GeodeticFrame) EastNorth(lat, lon float64) (e, n float64) {
	return (lon - f.RefLon) * f.MPerLon, (lat - f.RefLat) * f.MPerLat
}

func (f GeodeticFrame) LatLon(e, n float64) (lat, lon float64) {
	return f.RefLat + n/f.MPerLat, f.RefLon + e/f.MPerLon
}
