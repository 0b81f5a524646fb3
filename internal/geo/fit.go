package geo

import (
	"errors"
	"fmt"
	"math"
)

const (
	pivotEpsilon = 1e-9
	detEpsilon   = 1e-9
)

var (
	ErrTooFewPoints = errors.New("at least 3 control points are required")
	ErrSingular     = errors.New("control point system is singular")
)

// ControlPoint ties a surveyed geodetic position to working-frame X/Z.
type ControlPoint struct {
	Name string  `json:"name,omitempty"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
	X    float64 `json:"x"`
	Z    float64 `json:"z"`
}

// AffineFit maps local East/North metres to working X/Z:
//
//	[x z] = A * [e n] + T
//
// The zero value is unsolved and behaves as the identity.
type AffineFit struct {
	A      [2][2]float64 `json:"a"`
	T      [2]float64    `json:"t"`
	Solved bool          `json:"solved"`
	RMS    float64       `json:"rms"`
}

// Identity is the fallback used until a fit is solved.
func Identity() AffineFit {
	return AffineFit{A: [2][2]float64{{1, 0}, {0, 1}}}
}

// FitAffine solves the least-squares affine from control points. The returned
// fit is unsolved whenever err is non-nil.
func FitAffine(frame GeodeticFrame, points []ControlPoint) (AffineFit, error) {
	if len(points) < 3 {
		return Identity(), fmt.Errorf("fit %d points: %w", len(points), ErrTooFewPoints)
	}

	// Unknowns ordered a11 a12 a21 a22 tx tz. The X and Z rows share one design.
	var g [6][6]float64
	var h [6]float64
	for _, p := range points {
		e, n := frame.EastNorth(p.Lat, p.Lon)
		accumulate(&g, &h, 0, 1, 4, e, n, p.X)
		accumulate(&g, &h, 2, 3, 5, e, n, p.Z)
	}

	v, ok := solve6(g, h)
	if !ok {
		return Identity(), ErrSingular
	}

	fit := AffineFit{
		A:      [2][2]float64{{v[0], v[1]}, {v[2], v[3]}},
		T:      [2]float64{v[4], v[5]},
		Solved: true,
	}

	var sum float64
	for _, p := range points {
		e, n := frame.EastNorth(p.Lat, p.Lon)
		x, z := fit.Apply(e, n)
		sum += (x-p.X)*(x-p.X) + (z-p.Z)*(z-p.Z)
	}
	fit.RMS = math.Sqrt(sum / float64(2*len(points)))
	return fit, nil
}

// Apply maps east/north metres into working X/Z.
func (f AffineFit) Apply(e, n float64) (x, z float64) {
	if !f.Solved {
		return e, n
	}
	return f.A[0][0]*e + f.A[0][1]*n + f.T[0],
		f.A[1][0]*e + f.A[1][1]*n + f.T[1]
}

// Invert maps working X/Z back to east/north metres. A near-zero determinant
// is clamped rather than rejected.
func (f AffineFit) Invert(x, z float64) (e, n float64) {
	if !f.Solved {
		return x, z
	}
	det := f.A[0][0]*f.A[1][1] - f.A[0][1]*f.A[1][0]
	if math.Abs(det) < detEpsilon {
		det = math.Copysign(detEpsilon, det)
	}
	dx, dz := x-f.T[0], z-f.T[1]
	e = (f.A[1][1]*dx - f.A[0][1]*dz) / det
	n = (-f.A[1][0]*dx + f.A[0][0]*dz) / det
	return e, n
}

func accumulate(g *[6][6]float64, h *[6]float64, ia, ib, it int, e, n, target float64) {
	g[ia][ia] += e * e
	g[ia][ib] += e * n
	g[ia][it] += e
	g[ib][ib] += n * n
	g[ib][it] += n
	g[it][it] += 1

	g[ib][ia] = g[ia][ib]
	g[it][ia] = g[ia][it]
	g[it][ib] = g[ib][it]

	h[ia] += e * target
	h[ib] += n * target
	h[it] += target
}

// solve6 runs Gauss-Jordan elimination with partial pivoting.
func solve6(g [6][6]float64, h [6]float64) ([6]float64, bool) {
	const n = 6
	var m [n][n + 1]float64
	for r := 0; r < n; r++ {
		copy(m[r][:n], g[r][:])
		m[r][n] = h[r]
	}

	for p := 0; p < n; p++ {
		piv, best := p, math.Abs(m[p][p])
		for r := p + 1; r < n; r++ {
			if v := math.Abs(m[r][p]); v > best {
				piv, best = r, v
			}
		}
		if piv != p {
			m[p], m[piv] = m[piv], m[p]
		}

		diag := m[p][p]
		if math.Abs(diag) < pivotEpsilon {
			return [6]float64{}, false
		}
		for c := p; c <= n; c++ {
			m[p][c] /= diag
		}
		for r := 0; r < n; r++ {
			if r == p {
				continue
			}
			f := m[r][p]
			if math.Abs(f) < 1e-12 {
				continue
			}
			for c := p; c <= n; c++ {
				m[r][c] -= f * m[p][c]
			}
		}
	}

	var x [6]float64
	for i := 0; i < n; i++ {
		x[i] = m[i][n]
	}
	return x, true
}
