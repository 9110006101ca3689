package trace

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/tilesight/geometry"
)

// The maximum number of samples of a resampled trace.
const MaxResampledSamples = 1 << 20

const (
	// Returned when a trace is empty or its timestamps are not strictly
	// increasing.
	ErrTypeInvalidTrace = "invalid_trace"
)

// Sample is a head orientation recorded at a time offset from the start of
// the playback.
type Sample struct {
	Timestamp   time.Duration
	Orientation geometry.UnitQuaternion
}

// Validate checks that samples is not empty and that its timestamps are
// positive or zero and strictly increasing.
func Validate(samples []Sample) error {
	if len(samples) == 0 {
		return errors.New("trace has no samples").WithType(ErrTypeInvalidTrace)
	}

	if samples[0].Timestamp < 0 {
		return errors.New("trace starts before the playback").
			WithType(ErrTypeInvalidTrace).
			WithTag("timestamp", samples[0].Timestamp)
	}

	for i := 1; i < len(samples); i++ {
		if samples[i].Timestamp <= samples[i-1].Timestamp {
			return errors.New("trace timestamps are not strictly increasing").
				WithType(ErrTypeInvalidTrace).
				WithTag("index", i).
				WithTag("previous", samples[i-1].Timestamp).
				WithTag("timestamp", samples[i].Timestamp)
		}
	}
	return nil
}

// Resample returns samples spaced by interval between the first and the last
// sample of the trace. Orientations between two recorded samples are
// interpolated with slerp. The last recorded sample is always kept.
func Resample(samples []Sample, interval time.Duration) ([]Sample, error) {
	if interval <= 0 {
		return nil, errors.New("resampling requires a positive interval").
			WithType(geometry.ErrTypeInvalidInterval).
			WithTag("interval", interval)
	}
	if err := Validate(samples); err != nil {
		return nil, err
	}

	first := samples[0].Timestamp
	last := samples[len(samples)-1].Timestamp

	steps := (last-first)/interval + 1
	if steps >= MaxResampledSamples {
		return nil, errors.New("resampled trace has too many samples").
			WithType(ErrTypeInvalidTrace).
			WithTag("first", first).
			WithTag("last", last).
			WithTag("interval", interval).
			WithTag("max_samples", MaxResampledSamples)
	}
	res := make([]Sample, 0, int(steps)+1)

	j := 0
	for i := time.Duration(0); i < steps; i++ {
		t := first + i*interval
		if t >= last {
			break
		}

		for samples[j+1].Timestamp < t {
			j++
		}

		a, b := samples[j], samples[j+1]
		ratio := float64(t-a.Timestamp) / float64(b.Timestamp-a.Timestamp)

		res = append(res, Sample{
			Timestamp:   t,
			Orientation: a.Orientation.Slerp(b.Orientation, ratio),
		})
	}

	return append(res, samples[len(samples)-1]), nil
}

// AngularVelocities returns the average angular velocity, in radians per
// second, between each pair of consecutive samples.
func AngularVelocities(samples []Sample) ([]geometry.Vector, error) {
	if err := Validate(samples); err != nil {
		return nil, err
	}

	velocities := make([]geometry.Vector, 0, len(samples)-1)
	for i := 1; i < len(samples); i++ {
		a, b := samples[i-1], samples[i]

		w, err := geometry.AverageAngularVelocity(
			a.Orientation.Quaternion(),
			b.Orientation.Quaternion(),
			(b.Timestamp - a.Timestamp).Seconds(),
		)
		if err != nil {
			return nil, errors.New("computing angular velocity failed").
				WithType(errors.Type(err)).
				WithTag("index", i).
				Wrap(err)
		}
		velocities = append(velocities, w)
	}
	return velocities, nil
}

// OrthodromicTravel returns the summed great-circle angle, in radians,
// travelled by the viewing direction along the trace.
func OrthodromicTravel(samples []Sample) float64 {
	var travel float64
	for i := 1; i < len(samples); i++ {
		travel += geometry.OrthodromicDistance(samples[i-1].Orientation, samples[i].Orientation)
	}
	return travel
}
