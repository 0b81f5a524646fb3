package geo

import (
	"math"

	"github.com/golang/geo/r3"
	sgeo "github.com/skypies/geo"
)

// GeoPoint is a surveyed position with altitude in metres.
type GeoPoint struct {
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	AltM float64 `json:"altM"`
}

// CalibrationReport compares a known geodetic baseline against where the
// mapper puts it, so placement errors show up as scale and heading drift.
type CalibrationReport struct {
	A                 r3.Vector `json:"a"`
	B                 r3.Vector `json:"b"`
	RealDistM         float64   `json:"realDistM"`
	WorkingDistM      float64   `json:"workingDistM"`
	Scale             float64   `json:"scale"`
	TrueBearingDeg    float64   `json:"trueBearingDeg"`
	WorkingHeadingDeg float64   `json:"workingHeadingDeg"`
	BearingErrDeg     float64   `json:"bearingErrDeg"`
	OriginErrM        float64   `json:"originErrM"`
}

// Calibrate maps both points and measures the result against great-circle
// distance and true bearing.
func (m *Mapper) Calibrate(a, b GeoPoint) CalibrationReport {
	pa := m.ToWorking(a.Lat, a.Lon, a.AltM)
	pb := m.ToWorking(b.Lat, b.Lon, b.AltM)

	la := sgeo.Latlong{Lat: a.Lat, Long: a.Lon}
	lb := sgeo.Latlong{Lat: b.Lat, Long: b.Lon}
	realDist := la.DistKM(lb) * 1000
	trueBrg := normalizeDeg(la.BearingTowards(lb))

	d := pb.Sub(pa)
	working := d.Norm()
	heading := normalizeDeg(math.Atan2(d.X, d.Z) * 180 / math.Pi)

	// The reference point should land on the working origin
	st := m.Status()
	origin := m.ToWorking(st.Frame.RefLat, st.Frame.RefLon, 0)
	originErr := math.Hypot(origin.X, origin.Z)

	r := CalibrationReport{
		A:                 pa,
		B:                 pb,
		RealDistM:         realDist,
		WorkingDistM:      working,
		TrueBearingDeg:    trueBrg,
		WorkingHeadingDeg: heading,
		BearingErrDeg:     deltaAngle(heading, trueBrg),
		OriginErrM:        originErr,
	}
	if realDist > 0 {
		r.Scale = working / realDist
	}
	return r
}

func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// deltaAngle is the signed shortest rotation from a to b in degrees.
func deltaAngle(a, b float64) float64 {
	d := math.Mod(b-a, 360)
	if d > 180 {
		d -= 360
	} else if d < -180 {
		d += 360
	}
	return d
}
