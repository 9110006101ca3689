package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"net/url"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/events"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/aukilabs/tilesight/featureflag"
	tshttp "github.com/aukilabs/tilesight/http"
	"github.com/aukilabs/tilesight/models"
	"github.com/aukilabs/tilesight/smoketest"
	"github.com/aukilabs/tilesight/visibility"
	tswebsocket "github.com/aukilabs/tilesight/websocket"
	"github.com/golang/geo/s1"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

var (
	// The Tilesight version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "tilesight_info",
		Help:        "Tilesight information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string          `cli:""        env:"TILESIGHT_ADDR"                 help:"Listening address for client connections."`
	AdminAddr          string          `cli:""        env:"TILESIGHT_ADMIN_ADDR"           help:"Admin listening address."`
	PublicEndpoint     string          `cli:""        env:"TILESIGHT_PUBLIC_ENDPOINT"      help:"The public endpoint where this Tilesight server is reachable."`
	LogLevel           string          `cli:""        env:"TILESIGHT_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool            `cli:""        env:"TILESIGHT_LOG_INDENT"           help:"Indent logs."`
	Estimator          estimatorConfig `cli:""        env:"-"                              help:"Visibility estimator configuration."`
	CacheSize          int             `cli:""        env:"TILESIGHT_CACHE_SIZE"           help:"The number of visibility results cached per tiling."`
	PopularityWorkers  int             `cli:",hidden" env:"TILESIGHT_POPULARITY_WORKERS"   help:"The maximum number of concurrent visibility queries per popularity request."`
	ClientIdleTimeout  time.Duration   `cli:",hidden" env:"TILESIGHT_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle viewer will be disconnected."`
	LogSummaryInterval time.Duration   `cli:",hidden" env:"TILESIGHT_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	Events             eventsConfig    `cli:",hidden" env:"-"                              help:"Event pusher configuration."`
	FeatureFlags       []string        `cli:",hidden" env:"TILESIGHT_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool            `cli:""        env:"-"                              help:"Show version."`
	Help               bool            `cli:""        env:"-"                              help:"Show help."`
}

type estimatorConfig struct {
	FieldOfViewHorizontal float64 `cli:"" env:"TILESIGHT_FOV_HORIZONTAL"  help:"The horizontal field of view of the viewport, in degrees."`
	FieldOfViewVertical   float64 `cli:"" env:"TILESIGHT_FOV_VERTICAL"    help:"The vertical field of view of the viewport, in degrees."`
	SampleResolution      int     `cli:"" env:"TILESIGHT_SAMPLE_RESOLUTION" help:"The number of intervals on each side of the viewport sample grid."`
	MissPolicy            string  `cli:"" env:"TILESIGHT_MISS_POLICY"     help:"What to do with sample points outside of every tile (clamp|error)."`
	UnitTolerance         float64 `cli:",hidden" env:"TILESIGHT_UNIT_TOLERANCE" help:"The norm deviation accepted for head rotations in strict mode."`
}

type eventsConfig struct {
	Endpoint      string        `cli:",hidden" env:"TILESIGHT_EVENTS_ENDPOINT"       help:"Endpoint to where events are pushed."`
	FlushInterval time.Duration `cli:",hidden" env:"TILESIGHT_EVENTS_FLUSH_INTERVAL" help:"The duration between each event flush."`
	BatchSize     int           `cli:",hidden" env:"TILESIGHT_EVENTS_BATCH_SIZE"     help:"The maximum number of events sent at once."`
	QueueSize     int           `cli:",hidden" env:"TILESIGHT_EVENTS_QUEUE_SIZE"     help:"The size of the queue where events are stored."`
}

func main() {
	conf := config{
		Addr:           ":4000",
		AdminAddr:      ":18190",
		PublicEndpoint: "http://localhost:4000",
		LogLevel:       logs.InfoLevel.String(),
		Estimator: estimatorConfig{
			FieldOfViewHorizontal: visibility.DefaultFieldOfView.Degrees(),
			FieldOfViewVertical:   visibility.DefaultFieldOfView.Degrees(),
			SampleResolution:      visibility.DefaultSampleResolution,
			MissPolicy:            visibility.MissClamp.String(),
			UnitTolerance:         visibility.DefaultUnitTolerance,
		},
		CacheSize:          1024,
		PopularityWorkers:  8,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		Events: eventsConfig{
			FlushInterval: events.DefaultFlushInterval,
			BatchSize:     events.DefaultBatchSize,
			QueueSize:     events.DefaultQueueSize,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts Tilesight server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	featureFlags := featureflag.New(conf.FeatureFlags)

	options, err := estimatorOptions(conf, featureFlags)
	if err != nil {
		logs.Fatal(err)
	}

	if err := validateConfig(conf, options); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	if conf.Events.Endpoint != "" {
		eventsPusher := events.Pusher{
			Endpoint:      conf.Events.Endpoint,
			FlushInterval: conf.Events.FlushInterval,
			BatchSize:     conf.Events.BatchSize,
			QueueSize:     conf.Events.QueueSize,
			Transport:     metrics.HTTPTransport(http.DefaultTransport),
		}
		go eventsPusher.Start()
		defer eventsPusher.Close()

		eventsLogger := events.Logger{
			Pusher:           &eventsPusher,
			SDKType:          "tilesight",
			SDKVersionFamily: version,
		}
		logs.SetLogger(eventsLogger.Log)
	}

	cacheSize := conf.CacheSize
	featureFlags.IfSet(featureflag.FlagDisableVisibilityCache, func() {
		cacheSize = 0
	})

	tilings := models.TilingStore{
		Options:   options,
		CacheSize: cacheSize,
	}
	var viewers models.ViewerIDGenerator

	api := tshttp.API{
		Tilings:           &tilings,
		PopularityWorkers: conf.PopularityWorkers,
		Stream: func(t *models.Tiling) http.Handler {
			return tswebsocket.Server(ctx, func() tswebsocket.Handler {
				var h tswebsocket.Handler = &tswebsocket.StreamHandler{
					ClientIdleTimeout: conf.ClientIdleTimeout,
					Tiling:            t,
					Viewers:           &viewers,
				}
				h = tswebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
				return tswebsocket.HandlerWithMetrics(h, conf.PublicEndpoint)
			})
		},
	}

	var ready atomic.Bool
	readinessCheck := ready.Load

	var service http.ServeMux
	api.Register(&service)
	service.Handle("/health", tshttp.HandleWithCORS(http.HandlerFunc(tshttp.HandleHealthCheck)))
	service.Handle("/version", tshttp.HandleWithCORS(http.HandlerFunc(tshttp.HandleVersion(version))))
	service.Handle("/ready", tshttp.HandleWithCORS(http.HandlerFunc(tshttp.HandleReadyCheck(readinessCheck))))

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", tshttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", tshttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Endpoint:  conf.PublicEndpoint,
		UserAgent: fmt.Sprintf("Tilesight %s", version),
		SendResult: func(ctx context.Context, res smoketest.Result) error {
			logs.WithTag("from_endpoint", res.FromEndpoint).
				WithTag("to_endpoint", res.ToEndpoint).
				WithTag("status", res.Status).
				WithTag("latency_ms", res.LatencyMilliSec).
				WithTag("error", res.Error).
				Info("smoke test done")
			return nil
		},
	}))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("endpoint", conf.PublicEndpoint).
		WithTag("fov_horizontal", conf.Estimator.FieldOfViewHorizontal).
		WithTag("fov_vertical", conf.Estimator.FieldOfViewVertical).
		WithTag("sample_resolution", options.SampleResolution).
		WithTag("miss_policy", options.MissPolicy.String()).
		WithTag("strict_rotation", options.StrictRotation).
		WithTag("cache_size", cacheSize).
		Info("starting tilesight server")

	ready.Store(true)

	tshttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			tshttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)
}

func estimatorOptions(conf config, featureFlags featureflag.FeatureFlag) (visibility.Options, error) {
	missPolicy, err := visibility.ParseMissPolicy(conf.Estimator.MissPolicy)
	if err != nil {
		return visibility.Options{}, err
	}

	o := visibility.Options{
		FieldOfViewHorizontal: s1.Angle(conf.Estimator.FieldOfViewHorizontal) * s1.Degree,
		FieldOfViewVertical:   s1.Angle(conf.Estimator.FieldOfViewVertical) * s1.Degree,
		SampleResolution:      conf.Estimator.SampleResolution,
		MissPolicy:            missPolicy,
		UnitTolerance:         conf.Estimator.UnitTolerance,
	}

	featureFlags.IfSet(featureflag.FlagStrictRotation, func() {
		o.StrictRotation = true
	})
	featureFlags.IfSet(featureflag.FlagStrictCoordinates, func() {
		o.MissPolicy = visibility.MissError
	})

	return o, nil
}

func validateConfig(conf config, o visibility.Options) error {
	if _, err := url.ParseRequestURI(conf.PublicEndpoint); err != nil {
		return errors.New("invalid public endpoint").Wrap(err)
	}

	if err := o.Validate(); err != nil {
		return errors.New("invalid estimator configuration").Wrap(err)
	}

	if conf.CacheSize < 0 {
		return errors.New("cache size cannot be negative").
			WithTag("cache_size", conf.CacheSize)
	}

	if conf.ClientIdleTimeout <= 0 {
		return errors.New("client idle timeout must be positive").
			WithTag("client_idle_timeout", conf.ClientIdleTimeout)
	}

	if conf.LogSummaryInterval <= 0 {
		return errors.New("log summary interval must be positive").
			WithTag("log_summary_interval", conf.LogSummaryInterval)
	}

	return nil
}
