package visibility

import (
	"math"
	"sync"
	"testing"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilesight/geometry"
	"github.com/golang/geo/s1"
	"github.com/stretchr/testify/require"
)

var testOrientations = []geometry.UnitQuaternion{
	geometry.Identity(),
	geometry.FromEuler(math.Pi/2, 0, 0),
	geometry.FromEuler(-math.Pi/2, 0, 0),
	geometry.FromEuler(math.Pi, 0, 0),
	geometry.FromEuler(0, math.Pi/2, 0),
	geometry.FromEuler(0, -math.Pi/2, 0),
	geometry.FromEuler(0.4, 0.3, 0.2),
	geometry.FromEuler(-2.1, -1.2, 2.9),
	geometry.FromEuler(3.1, 0.7, -0.5),
}

func newTestEstimator(t *testing.T, l Layout, o Options) *Estimator {
	t.Helper()
	e, err := NewEstimator(l, o)
	require.NoError(t, err)
	return e
}

func TestNewEstimator(t *testing.T) {
	t.Run("default options", func(t *testing.T) {
		e := newTestEstimator(t, NewGridLayout(4, 2, 480, 480), DefaultOptions())
		require.Equal(t, 81, e.SampleCount())
		require.Equal(t, 8, e.TileCount())

		samples := e.SamplePoints()
		require.Equal(t, Coordinate{0, 0}, samples[0])
		require.Equal(t, Coordinate{0, 0.125}, samples[1])
		require.Equal(t, Coordinate{1, 1}, samples[80])
	})

	t.Run("sample resolution", func(t *testing.T) {
		o := DefaultOptions()
		o.SampleResolution = 4
		e := newTestEstimator(t, NewGridLayout(1, 1, 480, 480), o)
		require.Equal(t, 25, e.SampleCount())
	})

	t.Run("invalid layout", func(t *testing.T) {
		_, err := NewEstimator(Layout{}, DefaultOptions())
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeInvalidLayout))
	})

	t.Run("invalid options", func(t *testing.T) {
		cases := []func(o *Options){
			func(o *Options) { o.SampleResolution = 0 },
			func(o *Options) { o.FieldOfViewHorizontal = 0 },
			func(o *Options) { o.FieldOfViewVertical = 180 * s1.Degree },
			func(o *Options) { o.MissPolicy = MissPolicy(42) },
			func(o *Options) { o.StrictRotation = true; o.UnitTolerance = -1 },
		}

		for _, c := range cases {
			o := DefaultOptions()
			c(&o)

			_, err := NewEstimator(NewGridLayout(1, 1, 480, 480), o)
			require.Error(t, err)
			require.True(t, errors.IsType(err, ErrTypeInvalidOptions))
		}
	})
}

func TestEstimatorProject(t *testing.T) {
	e := newTestEstimator(t, NewGridLayout(1, 1, 480, 480), DefaultOptions())

	t.Run("looking straight ahead", func(t *testing.T) {
		c := e.Project(geometry.Identity(), Coordinate{0.5, 0.5})
		require.InDelta(t, 0.25, c.X, 1e-12)
		require.InDelta(t, 0.5, c.Y, 1e-12)
	})

	t.Run("looking backward", func(t *testing.T) {
		c := e.Project(geometry.FromEuler(math.Pi, 0, 0), Coordinate{0.5, 0.5})
		require.InDelta(t, 0.75, c.X, 1e-12)
		require.InDelta(t, 0.5, c.Y, 1e-12)
	})

	t.Run("looking up", func(t *testing.T) {
		c := e.Project(geometry.FromEuler(0, -math.Pi/2, 0), Coordinate{0.5, 0.5})
		require.InDelta(t, 0, c.Y, 1e-7)
	})

	t.Run("viewport left is on the map left", func(t *testing.T) {
		left := e.Project(geometry.Identity(), Coordinate{0, 0.5})
		right := e.Project(geometry.Identity(), Coordinate{1, 0.5})
		require.Less(t, left.X, right.X)
	})
}

func TestComputeTileVisibilitySingleTile(t *testing.T) {
	e := newTestEstimator(t, NewGridLayout(1, 1, 3840, 1920), DefaultOptions())

	for _, o := range testOrientations {
		v, err := e.ComputeUnitTileVisibility(o)
		require.NoError(t, err)
		require.Equal(t, Visibility{0: e.SampleCount()}, v)

		v, err = e.ComputeTileVisibility(o.Quaternion().Scale(2.5))
		require.NoError(t, err)
		require.Equal(t, Visibility{0: e.SampleCount()}, v)
	}
}

func TestComputeTileVisibilityHalves(t *testing.T) {
	e := newTestEstimator(t, NewGridLayout(2, 1, 1920, 1920), DefaultOptions())

	// The identity viewport is centered on eqx 0.25 and spans roughly
	// [0.07, 0.43], which is entirely inside tile 0.
	t.Run("straight ahead is in the left half", func(t *testing.T) {
		v, err := e.ComputeUnitTileVisibility(geometry.Identity())
		require.NoError(t, err)
		require.Equal(t, Visibility{0: e.SampleCount()}, v)
	})

	t.Run("looking at the middle of the map splits the viewport", func(t *testing.T) {
		v, err := e.ComputeUnitTileVisibility(geometry.FromEuler(-math.Pi/2, 0, 0))
		require.NoError(t, err)
		require.NotZero(t, v[0])
		require.NotZero(t, v[1])
		require.Equal(t, e.SampleCount(), v.Total())
	})
}

func TestComputeTileVisibilityTotal(t *testing.T) {
	layouts := []Layout{
		NewGridLayout(1, 1, 100, 100),
		NewGridLayout(2, 1, 100, 100),
		NewGridLayout(4, 2, 100, 100),
		NewGridLayout(6, 4, 100, 100),
		NewGridLayout(12, 6, 100, 100),
	}

	for _, l := range layouts {
		o := DefaultOptions()
		o.MissPolicy = MissError
		e := newTestEstimator(t, l, o)

		for _, q := range testOrientations {
			v, err := e.ComputeUnitTileVisibility(q)
			require.NoError(t, err)
			require.Equal(t, e.SampleCount(), v.Total())

			for _, id := range v.TileIDs() {
				require.GreaterOrEqual(t, id, 0)
				require.Less(t, id, len(l.Tiles))
			}
		}
	}
}

func TestComputeTileVisibilityPitch(t *testing.T) {
	e := newTestEstimator(t, NewGridLayout(4, 2, 100, 100), DefaultOptions())

	up, err := e.ComputeUnitTileVisibility(geometry.FromEuler(0, -math.Pi/2, 0))
	require.NoError(t, err)
	for _, id := range up.TileIDs() {
		require.Less(t, id, 4)
	}

	down, err := e.ComputeUnitTileVisibility(geometry.FromEuler(0, math.Pi/2, 0))
	require.NoError(t, err)
	for _, id := range down.TileIDs() {
		require.GreaterOrEqual(t, id, 4)
	}
}

func TestComputeTileVisibilityYawPeriodicity(t *testing.T) {
	e := newTestEstimator(t, NewGridLayout(3, 1, 100, 100), DefaultOptions())
	fullTurn := geometry.FromEuler(2*math.Pi, 0, 0)

	for _, q := range []geometry.UnitQuaternion{
		geometry.Identity(),
		geometry.FromEuler(0.4, 0.3, 0.2),
	} {
		expected, err := e.ComputeUnitTileVisibility(q)
		require.NoError(t, err)

		v, err := e.ComputeUnitTileVisibility(q.Mul(fullTurn))
		require.NoError(t, err)
		require.Equal(t, expected, v)
	}
}

func TestComputeTileVisibilityStrictRotation(t *testing.T) {
	o := DefaultOptions()
	o.StrictRotation = true
	e := newTestEstimator(t, NewGridLayout(2, 1, 100, 100), o)

	_, err := e.ComputeTileVisibility(geometry.FromEuler(0.3, 0, 0).Quaternion())
	require.NoError(t, err)

	_, err = e.ComputeTileVisibility(geometry.New(2, 0, 0, 0))
	require.Error(t, err)
	require.True(t, errors.IsType(err, geometry.ErrTypeNotUnitQuaternion))
}

func TestComputeTileVisibilityNullRotation(t *testing.T) {
	e := newTestEstimator(t, NewGridLayout(2, 1, 100, 100), DefaultOptions())

	_, err := e.ComputeTileVisibility(geometry.Quaternion{})
	require.Error(t, err)
}

func TestComputeTileVisibilityMissPolicy(t *testing.T) {
	// Only the left half of the frame is tiled.
	l := LayoutFromTiles(2, 1, []Tile{{X: 0, Y: 0, Width: 100, Height: 100}})
	backward := geometry.FromEuler(math.Pi, 0, 0)

	t.Run("clamp", func(t *testing.T) {
		e := newTestEstimator(t, l, DefaultOptions())

		v, err := e.ComputeUnitTileVisibility(backward)
		require.NoError(t, err)
		require.Equal(t, Visibility{0: e.SampleCount()}, v)
	})

	t.Run("error", func(t *testing.T) {
		o := DefaultOptions()
		o.MissPolicy = MissError
		e := newTestEstimator(t, l, o)

		_, err := e.ComputeUnitTileVisibility(backward)
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeCoordinateOutOfRange))

		v, err := e.ComputeUnitTileVisibility(geometry.Identity())
		require.NoError(t, err)
		require.Equal(t, Visibility{0: e.SampleCount()}, v)
	})
}

func TestComputeTileVisibilityConcurrent(t *testing.T) {
	e := newTestEstimator(t, NewGridLayout(6, 4, 100, 100), DefaultOptions())

	expected := make([]Visibility, len(testOrientations))
	for i, q := range testOrientations {
		v, err := e.ComputeUnitTileVisibility(q)
		require.NoError(t, err)
		expected[i] = v
	}

	var wg sync.WaitGroup
	results := make([]Visibility, len(testOrientations))

	for i, q := range testOrientations {
		wg.Add(1)
		go func(i int, q geometry.UnitQuaternion) {
			defer wg.Done()
			results[i], _ = e.ComputeUnitTileVisibility(q)
		}(i, q)
	}
	wg.Wait()

	require.Equal(t, expected, results)
}

func TestVisibilityHelpers(t *testing.T) {
	v := Visibility{3: 2, 1: 5}
	require.Equal(t, 7, v.Total())
	require.Equal(t, []int{1, 3}, v.TileIDs())

	c := v.Clone()
	c.Add(Visibility{1: 1, 4: 1})
	require.Equal(t, Visibility{1: 6, 3: 2, 4: 1}, c)
	require.Equal(t, Visibility{3: 2, 1: 5}, v)
}

func TestParseMissPolicy(t *testing.T) {
	p, err := ParseMissPolicy("error")
	require.NoError(t, err)
	require.Equal(t, MissError, p)
	require.Equal(t, "error", p.String())

	p, err = ParseMissPolicy("")
	require.NoError(t, err)
	require.Equal(t, MissClamp, p)

	_, err = ParseMissPolicy("wrap")
	require.True(t, errors.IsType(err, ErrTypeInvalidOptions))
}

func TestOptionsHeadRotation(t *testing.T) {
	o := DefaultOptions()

	u, err := o.HeadRotation(geometry.New(0, 0, 0, 2))
	require.NoError(t, err)
	require.Equal(t, geometry.New(0, 0, 0, 1), u.Quaternion())

	_, err = o.HeadRotation(geometry.Quaternion{})
	require.True(t, errors.IsType(err, geometry.ErrTypeDegenerate))

	o.StrictRotation = true
	_, err = o.HeadRotation(geometry.New(0, 0, 0, 2))
	require.True(t, errors.IsType(err, geometry.ErrTypeNotUnitQuaternion))

	_, err = o.HeadRotation(geometry.New(0, 0, 0, 1+1e-9))
	require.NoError(t, err)
}
