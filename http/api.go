package http

import (
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	httpcmn "github.com/aukilabs/hagall-common/http"
	"github.com/aukilabs/hagall-common/messages/hagallpb"
	"github.com/aukilabs/tilesight/geometry"
	"github.com/aukilabs/tilesight/models"
	"github.com/aukilabs/tilesight/trace"
	"github.com/aukilabs/tilesight/visibility"
	"github.com/segmentio/encoding/json"
	"google.golang.org/protobuf/proto"
)

const (
	maxBodySize = 4 << 20

	contentTypeProtobuf = "application/x-protobuf"
)

// API serves the tiling and visibility endpoints.
type API struct {
	// The store where tilings are registered.
	Tilings *models.TilingStore

	// The maximum number of concurrent visibility queries of a popularity
	// request. Not limited when not positive.
	PopularityWorkers int

	// Returns the handler that streams the visibility of the given tiling.
	// The stream endpoint is not registered when nil.
	Stream func(t *models.Tiling) http.Handler
}

// Register registers the API endpoints on the given mux.
func (a *API) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /tilings", a.handleCreateTiling)
	mux.HandleFunc("GET /tilings", a.handleListTilings)
	mux.HandleFunc("GET /tilings/{id}", a.handleGetTiling)
	mux.HandleFunc("DELETE /tilings/{id}", a.handleDeleteTiling)
	mux.HandleFunc("POST /tilings/{id}/visibility", a.handleVisibility)
	mux.HandleFunc("POST /tilings/{id}/popularity", a.handlePopularity)

	if a.Stream != nil {
		mux.HandleFunc("GET /tilings/{id}/stream", a.handleStream)
	}
}

type tilingResponse struct {
	ID           string                  `json:"id"`
	CreatedAt    time.Time               `json:"created_at"`
	TileCount    int                     `json:"tile_count"`
	SampleCount  int                     `json:"sample_count"`
	Layout       visibility.Layout       `json:"layout"`
	SamplePoints []visibility.Coordinate `json:"sample_points,omitempty"`
}

func newTilingResponse(t *models.Tiling, withSamples bool) tilingResponse {
	e := t.Estimator()

	res := tilingResponse{
		ID:          t.ID,
		CreatedAt:   t.CreatedAt,
		TileCount:   e.TileCount(),
		SampleCount: e.SampleCount(),
		Layout:      t.Layout,
	}
	if withSamples {
		res.SamplePoints = e.SamplePoints()
	}
	return res
}

func (a *API) handleCreateTiling(w http.ResponseWriter, r *http.Request) {
	var layout visibility.Layout
	if err := decodeJSON(r, &layout); err != nil {
		httpcmn.BadRequest(w, httpcmn.ErrBadRequest)
		return
	}

	switch {
	case len(layout.Tiles) == 0:
		if err := layout.ValidateGrid(); err != nil {
			writeError(w, err)
			return
		}
		layout = visibility.NewGridLayout(layout.Columns, layout.Rows, layout.TileWidth, layout.TileHeight)

	case layout.TileWidth == 0 && layout.TileHeight == 0:
		layout = visibility.LayoutFromTiles(layout.Columns, layout.Rows, layout.Tiles)
	}

	t, err := a.Tilings.Add(layout)
	if err != nil {
		writeError(w, err)
		return
	}

	logs.WithTag("tiling_id", t.ID).
		WithTag("tiles", len(t.Layout.Tiles)).
		WithTag("columns", t.Layout.Columns).
		WithTag("rows", t.Layout.Rows).
		Info("tiling registered")

	writeJSON(w, http.StatusCreated, newTilingResponse(t, true))
}

func (a *API) handleListTilings(w http.ResponseWriter, r *http.Request) {
	tilings := a.Tilings.List()

	res := make([]tilingResponse, len(tilings))
	for i, t := range tilings {
		res[i] = newTilingResponse(t, false)
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *API) handleGetTiling(w http.ResponseWriter, r *http.Request) {
	t, ok := a.tiling(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newTilingResponse(t, true))
}

func (a *API) handleDeleteTiling(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := a.Tilings.Remove(id); err != nil {
		writeError(w, err)
		return
	}

	logs.WithTag("tiling_id", id).Info("tiling removed")
	w.WriteHeader(http.StatusNoContent)
}

type visibilityRequest struct {
	Orientation *models.Orientation `json:"orientation"`
}

type visibilityResponse struct {
	TilingID string                `json:"tiling_id"`
	Tiles    visibility.Visibility `json:"tiles"`
	Total    int                   `json:"total"`
}

func (a *API) handleVisibility(w http.ResponseWriter, r *http.Request) {
	t, ok := a.tiling(w, r)
	if !ok {
		return
	}

	orientation, err := decodeOrientation(r)
	if err != nil {
		httpcmn.BadRequest(w, httpcmn.ErrBadRequest)
		return
	}

	v, err := t.Visibility(orientation.Quaternion())
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, visibilityResponse{
		TilingID: t.ID,
		Tiles:    v,
		Total:    v.Total(),
	})
}

// Decodes a JSON visibility request, or a posemesh pose when the body is
// protobuf encoded.
func decodeOrientation(r *http.Request) (models.Orientation, error) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), contentTypeProtobuf) {
		b, err := readBody(r)
		if err != nil {
			return models.Orientation{}, err
		}

		var pose hagallpb.Pose
		if err := proto.Unmarshal(b, &pose); err != nil {
			return models.Orientation{}, errors.New("decoding pose failed").Wrap(err)
		}
		return models.OrientationFromProtobuf(&pose), nil
	}

	var req visibilityRequest
	if err := decodeJSON(r, &req); err != nil {
		return models.Orientation{}, err
	}
	if req.Orientation == nil {
		return models.Orientation{}, errors.New("missing orientation")
	}
	return *req.Orientation, nil
}

type popularitySample struct {
	TimestampMS int64              `json:"timestamp_ms"`
	Orientation models.Orientation `json:"orientation"`
}

type popularityRequest struct {
	Samples []popularitySample `json:"samples"`

	// Resamples the trace at a fixed rate when positive.
	ResampleIntervalMS int64 `json:"resample_interval_ms,omitempty"`
}

type sampleVisibility struct {
	TimestampMS int64                 `json:"timestamp_ms"`
	Tiles       visibility.Visibility `json:"tiles"`
}

type popularityResponse struct {
	TilingID          string                `json:"tiling_id"`
	SampleCount       int                   `json:"sample_count"`
	Tiles             visibility.Visibility `json:"tiles"`
	Total             int                   `json:"total"`
	Samples           []sampleVisibility    `json:"samples"`
	AngularVelocities []models.Vector       `json:"angular_velocities"`
	OrthodromicTravel float64               `json:"orthodromic_travel"`
}

func (a *API) handlePopularity(w http.ResponseWriter, r *http.Request) {
	t, ok := a.tiling(w, r)
	if !ok {
		return
	}

	var req popularityRequest
	if err := decodeJSON(r, &req); err != nil {
		httpcmn.BadRequest(w, httpcmn.ErrBadRequest)
		return
	}

	options := t.Estimator().Options()
	samples := make([]trace.Sample, len(req.Samples))

	for i, s := range req.Samples {
		timestamp, err := durationFromMS(s.TimestampMS)
		if err != nil {
			writeError(w, errors.New("invalid sample timestamp").
				WithType(errors.Type(err)).
				WithTag("index", i).
				Wrap(err))
			return
		}

		u, err := options.HeadRotation(s.Orientation.Quaternion())
		if err != nil {
			writeError(w, errors.New("invalid sample orientation").
				WithType(errors.Type(err)).
				WithTag("index", i).
				Wrap(err))
			return
		}

		samples[i] = trace.Sample{
			Timestamp:   timestamp,
			Orientation: u,
		}
	}

	if req.ResampleIntervalMS > 0 {
		interval, err := durationFromMS(req.ResampleIntervalMS)
		if err != nil {
			writeError(w, err)
			return
		}

		if samples, err = trace.Resample(samples, interval); err != nil {
			writeError(w, err)
			return
		}
	}

	report, err := trace.Popularity(r.Context(), t, samples, a.PopularityWorkers)
	if err != nil {
		writeError(w, err)
		return
	}

	velocities, err := trace.AngularVelocities(samples)
	if err != nil {
		writeError(w, err)
		return
	}

	res := popularityResponse{
		TilingID:          t.ID,
		SampleCount:       len(samples),
		Tiles:             report.Total,
		Total:             report.Total.Total(),
		Samples:           make([]sampleVisibility, len(samples)),
		AngularVelocities: make([]models.Vector, len(velocities)),
		OrthodromicTravel: trace.OrthodromicTravel(samples),
	}
	for i, s := range samples {
		res.Samples[i] = sampleVisibility{
			TimestampMS: s.Timestamp.Milliseconds(),
			Tiles:       report.Samples[i],
		}
	}
	for i, v := range velocities {
		res.AngularVelocities[i] = models.VectorFromGeometry(v)
	}

	writeJSON(w, http.StatusOK, res)
}

// Converts milliseconds to a duration, rejecting values the duration cannot
// represent.
func durationFromMS(ms int64) (time.Duration, error) {
	const max = math.MaxInt64 / int64(time.Millisecond)

	if ms > max || ms < -max {
		return 0, errors.New("timestamp is out of range").
			WithType(trace.ErrTypeInvalidTrace).
			WithTag("timestamp_ms", ms).
			WithTag("max_timestamp_ms", max)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func (a *API) handleStream(w http.ResponseWriter, r *http.Request) {
	t, ok := a.tiling(w, r)
	if !ok {
		return
	}
	a.Stream(t).ServeHTTP(w, r)
}

func (a *API) tiling(w http.ResponseWriter, r *http.Request) (*models.Tiling, bool) {
	id := r.PathValue("id")

	t, ok := a.Tilings.Get(id)
	if !ok {
		writeError(w, errors.New("tiling not found").
			WithType(models.ErrTypeTilingNotFound).
			WithTag("tiling_id", id))
		return nil, false
	}
	return t, true
}

func readBody(r *http.Request) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize+1))
	if err != nil {
		return nil, errors.New("reading body failed").Wrap(err)
	}
	if len(b) > maxBodySize {
		return nil, errors.New("body is too large").WithTag("max_size", maxBodySize)
	}
	return b, nil
}

func decodeJSON(r *http.Request, v any) error {
	b, err := readBody(r)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(b, v); err != nil {
		return errors.New("decoding body failed").Wrap(err)
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
	Type  string `json:"type,omitempty"`
}

// Writes a typed error with the status code matching its type.
func writeError(w http.ResponseWriter, err error) {
	var status int

	switch errors.Type(err) {
	case models.ErrTypeTilingNotFound:
		status = http.StatusNotFound

	case visibility.ErrTypeInvalidLayout,
		visibility.ErrTypeInvalidOptions,
		trace.ErrTypeInvalidTrace,
		geometry.ErrTypeInvalidInterval:
		status = http.StatusBadRequest

	case geometry.ErrTypeNotUnitQuaternion,
		geometry.ErrTypeDegenerate,
		visibility.ErrTypeCoordinateOutOfRange:
		status = http.StatusUnprocessableEntity

	default:
		logs.Error(errors.New("handling request failed").Wrap(err))
		httpcmn.InternalServerError(w, err)
		return
	}

	writeJSON(w, status, errorResponse{
		Error: err.Error(),
		Type:  errors.Type(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		httpcmn.InternalServerError(w, errors.New("encoding response failed").Wrap(err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
