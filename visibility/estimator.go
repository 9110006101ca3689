package visibility

import (
	"math"
	"sort"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilesight/geometry"
)

// Visibility maps tile ids to the number of viewport samples that hit them.
// Tiles that are not present have no hits.
type Visibility map[int]int

// Total returns the sum of the hits of all tiles.
func (v Visibility) Total() int {
	var total int
	for _, hits := range v {
		total += hits
	}
	return total
}

// TileIDs returns the ids of the hit tiles in ascending order.
func (v Visibility) TileIDs() []int {
	ids := make([]int, 0, len(v))
	for id := range v {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Add adds the hits of o to v.
func (v Visibility) Add(o Visibility) {
	for id, hits := range o {
		v[id] += hits
	}
}

func (v Visibility) Clone() Visibility {
	c := make(Visibility, len(v))
	for id, hits := range v {
		c[id] = hits
	}
	return c
}

// Estimator computes how a viewport covers the tiles of an equirectangular
// frame for a given head orientation.
//
// An estimator is immutable once created and can be queried concurrently.
type Estimator struct {
	options Options
	index   TileLocator
	tiles   int
	samples []Coordinate
	rays    []geometry.Vector
}

// NewEstimator creates an estimator for the given layout.
func NewEstimator(l Layout, o Options) (*Estimator, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}

	index, err := NewTileIndex(l)
	if err != nil {
		return nil, err
	}

	e := &Estimator{
		options: o,
		index:   index,
		tiles:   len(l.Tiles),
	}
	e.initSamples()
	return e, nil
}

func (e *Estimator) initSamples() {
	res := e.options.SampleResolution
	step := 1.0 / float64(res)

	e.samples = make([]Coordinate, 0, (res+1)*(res+1))
	e.rays = make([]geometry.Vector, 0, (res+1)*(res+1))

	for i := 0; i <= res; i++ {
		for j := 0; j <= res; j++ {
			s := Coordinate{X: float64(i) * step, Y: float64(j) * step}
			e.samples = append(e.samples, s)
			e.rays = append(e.rays, e.ray(s))
		}
	}
}

// Returns the camera space direction of a viewport sample. x looks forward
// and the viewport spans the y and z axes.
func (e *Estimator) ray(s Coordinate) geometry.Vector {
	maxH, maxV := e.options.maxDistances()
	u := (s.X - 0.5) * (2 * maxH)
	v := (0.5 - s.Y) * (2 * maxV)
	return geometry.NewVector(1, u, v).Normalize()
}

func (e *Estimator) Options() Options {
	return e.options
}

// TileCount returns the number of tiles of the layout.
func (e *Estimator) TileCount() int {
	return e.tiles
}

// SampleCount returns the number of viewport samples tested per query.
func (e *Estimator) SampleCount() int {
	return len(e.samples)
}

// SamplePoints returns a copy of the normalized viewport sample grid.
func (e *Estimator) SamplePoints() []Coordinate {
	samples := make([]Coordinate, len(e.samples))
	copy(samples, e.samples)
	return samples
}

// ComputeTileVisibility returns the tile visibility of the viewport for the
// given head rotation.
//
// Non unit rotations are compensated, unless the estimator is configured with
// StrictRotation.
func (e *Estimator) ComputeTileVisibility(head geometry.Quaternion) (Visibility, error) {
	u, err := e.options.HeadRotation(head)
	if err != nil {
		return nil, err
	}
	return e.ComputeUnitTileVisibility(u)
}

// ComputeUnitTileVisibility returns the tile visibility of the viewport for
// the given head rotation.
func (e *Estimator) ComputeUnitTileVisibility(head geometry.UnitQuaternion) (Visibility, error) {
	v := make(Visibility)

	for i, ray := range e.rays {
		c := e.project(head, ray)

		if e.options.MissPolicy == MissClamp {
			v[e.index.LocateClamped(c)]++
			continue
		}

		id, ok := e.index.Locate(c)
		if !ok {
			return nil, errors.New("coordinate is beyond the tile corners").
				WithType(ErrTypeCoordinateOutOfRange).
				WithTag("sample", i).
				WithTag("x", c.X).
				WithTag("y", c.Y)
		}
		v[id]++
	}

	return v, nil
}

// Project returns the equirectangular coordinate seen by the given viewport
// sample, once rotated by head.
func (e *Estimator) Project(head geometry.Rotation, sample Coordinate) Coordinate {
	return e.project(head, e.ray(sample))
}

func (e *Estimator) project(head geometry.Rotation, ray geometry.Vector) Coordinate {
	s := head.Rotate(ray).Spherical()

	// The 0.75 offset moves the projection seam to the origin of the tiling
	// layout.
	return Coordinate{
		X: 1 - frac(0.75+s.Theta()/(2*math.Pi)),
		Y: s.Phi() / math.Pi,
	}
}

func frac(v float64) float64 {
	return v - math.Floor(v)
}
