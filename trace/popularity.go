package trace

import (
	"context"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilesight/geometry"
	"github.com/aukilabs/tilesight/visibility"
	"golang.org/x/sync/errgroup"
)

// Estimator is the interface that computes the tile visibility of a head
// orientation.
type Estimator interface {
	ComputeUnitTileVisibility(head geometry.UnitQuaternion) (visibility.Visibility, error)
}

// Report holds the tile popularity of a trace.
type Report struct {
	// The hits of each tile summed over all the samples.
	Total visibility.Visibility

	// The visibility of each sample, in trace order.
	Samples []visibility.Visibility
}

// Popularity computes the visibility of every sample with at most workers
// concurrent queries and sums them. A non positive workers value does not
// limit concurrency.
func Popularity(ctx context.Context, e Estimator, samples []Sample, workers int) (Report, error) {
	if err := Validate(samples); err != nil {
		return Report{}, err
	}

	g, ctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}

	results := make([]visibility.Visibility, len(samples))
	for i, s := range samples {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			v, err := e.ComputeUnitTileVisibility(s.Orientation)
			if err != nil {
				return errors.New("computing sample visibility failed").
					WithType(errors.Type(err)).
					WithTag("index", i).
					WithTag("timestamp", s.Timestamp).
					Wrap(err)
			}
			results[i] = v
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return Report{}, err
	}

	total := make(visibility.Visibility)
	for _, v := range results {
		total.Add(v)
	}

	return Report{
		Total:   total,
		Samples: results,
	}, nil
}
