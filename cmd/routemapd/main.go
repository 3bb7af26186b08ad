package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/huiputin/routemap/internal/api"
	"github.com/huiputin/routemap/internal/board"
	"github.com/huiputin/routemap/internal/config"
	"github.com/huiputin/routemap/internal/database"
	"github.com/huiputin/routemap/internal/dispatcher"
	"github.com/huiputin/routemap/internal/feed"
	"github.com/huiputin/routemap/internal/httpapi"
	"github.com/huiputin/routemap/internal/influx"
	"github.com/huiputin/routemap/internal/lifecycle"
	"github.com/huiputin/routemap/internal/logging"
	"github.com/huiputin/routemap/internal/monitor"
	"github.com/huiputin/routemap/internal/notify"
	intOtel "github.com/huiputin/routemap/internal/otel"
	"github.com/huiputin/routemap/internal/sector"
	"github.com/huiputin/routemap/internal/storage"
	"github.com/huiputin/routemap/internal/stream/websocket"
	"github.com/huiputin/routemap/pkg/core"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"gorm.io/gorm"
)

const ServiceName = "routemapd"

var (
	// SessionStartTime names the log file of this run
	SessionStartTime = time.Now()
	LogFile          *os.File

	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager
	// Logger is the main structured logger
	Logger *slog.Logger
	// ZLog feeds the influx manager
	ZLog zerolog.Logger

	OTelProvider *intOtel.Provider

	Store      storage.Backend
	Dispatcher *dispatcher.Dispatcher
	Feed       *feed.Feed
	Board      *board.Board
	Visits     *lifecycle.Registry
	Recorder   *notify.Recorder
	Stream     *websocket.Stream
	Influx     *influx.Manager
	Monitor    *monitor.Service
	Server     *echo.Echo
)

func main() {
	configDir := pflag.StringP("config", "c", ".", "directory holding "+config.FileName+" and .env")
	pflag.Parse()

	if err := initLogging(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	Logger.Info("Starting up...", "gym", viper.GetString("gymName"))

	if err := run(); err != nil {
		Logger.Error("Fatal error", "error", err)
		shutdown()
		os.Exit(1)
	}
}

// initLogging loads the config and sets up the log file, OTel and Graylog.
func initLogging(configDir string) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		// defaults still apply
		Logger.Warn("Failed to load config, using defaults", "error", err)
	}

	var err error
	LogFile, err = logging.OpenLogFile(viper.GetString("logsDir"), ServiceName, SessionStartTime)
	if err != nil {
		return err
	}

	var otelLogProvider *sdklog.LoggerProvider
	otelCfg := config.GetOTelConfig()
	if otelCfg.Enabled {
		OTelProvider, err = intOtel.New(intOtel.Config{
			Enabled:      true,
			ServiceName:  otelCfg.ServiceName,
			Gym:          viper.GetString("gymName"),
			BatchTimeout: otelCfg.BatchTimeout,
			LogWriter:    LogFile,
			Endpoint:     otelCfg.Endpoint,
			Insecure:     otelCfg.Insecure,
		})
		if err != nil {
			Logger.Error("Failed to initialize OTel provider", "error", err)
		} else {
			otelLogProvider = OTelProvider.LoggerProvider()
		}
	}

	if viper.GetBool("graylog.enabled") {
		if err := SlogManager.EnableGraylog(viper.GetString("graylog.address")); err != nil {
			Logger.Error("Failed to enable graylog", "error", err)
		}
	}

	SlogManager.SetContextProvider(func() []slog.Attr {
		attrs := []slog.Attr{slog.String("gym", viper.GetString("gymName"))}
		if Visits != nil {
			attrs = append(attrs, slog.Int("openVisits", Visits.Len()))
		}
		if Feed != nil {
			attrs = append(attrs, slog.Int("markers", Feed.Len()))
		}
		return attrs
	})
	SlogManager.Setup(LogFile, viper.GetString("logLevel"), otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Logging to file", "path", LogFile.Name())

	ZLog = zerolog.New(LogFile).With().Timestamp().Str("service", ServiceName).Logger()
	if lvl, err := zerolog.ParseLevel(viper.GetString("logLevel")); err == nil {
		ZLog = ZLog.Level(lvl)
	}
	return nil
}

func run() error {
	var err error

	Logger.Info("Initializing storage...")
	if err = initStorage(); err != nil {
		return err
	}

	Dispatcher, err = dispatcher.New(Logger.With("component", "dispatcher"))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	index, err := sector.FromConfig()
	if err != nil {
		return fmt.Errorf("failed to load sectors: %w", err)
	}
	if sql, ok := Store.(interface{ DB() *gorm.DB }); ok {
		if err := database.SaveSectors(sql.DB(), index.Sectors()); err != nil {
			Logger.Warn("Failed to store sector layout", "error", err)
		}
	}

	Recorder = notify.NewRecorder(viper.GetInt("notify.history"))
	sinks := notify.MultiSink{Recorder, notify.LogSink{Logger: Logger}}
	if url := viper.GetString("stream.url"); url != "" {
		Stream = websocket.New(websocket.Config{
			URL:     url,
			Secret:  viper.GetString("stream.secret"),
			Service: ServiceName,
			Gym:     viper.GetString("gymName"),
		}, Logger)
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err = Stream.Connect(ctx)
		cancel()
		if err != nil {
			// the board works without a stream
			Logger.Error("Failed to connect notification stream", "url", url, "error", err)
			Stream = nil
		} else {
			sinks = append(sinks, Stream)
		}
	}

	Feed, err = feed.New(Store, feed.WithDispatcher(Dispatcher), feed.WithLogger(Logger))
	if err != nil {
		return fmt.Errorf("failed to create marker feed: %w", err)
	}
	Feed.OnError(func(err error) {
		Logger.Error("Marker subscription error", "error", err)
	})

	notifier := notify.NewNotifier(sinks, viper.GetDuration("notify.newRouteDuration"))
	Board = board.New(Feed, index, notifier, Logger)
	if Stream != nil {
		Board.OnClusters(func(clusters []core.Cluster) {
			Stream.PublishClusters(clusters, Board.NewRouteIDs())
		})
	}

	Visits = lifecycle.NewRegistry()

	var uploader lifecycle.Uploader
	if host := viper.GetString("imageHost.url"); host != "" {
		client := api.New(host, viper.GetString("imageHost.apiKey"))
		if err := client.Healthcheck(); err != nil {
			Logger.Warn("Image host not reachable", "url", host, "error", err)
		} else {
			Logger.Info("Image host reachable", "url", host)
		}
		uploader = client
	}

	if viper.GetBool("influx.enabled") {
		Influx = influx.NewManager(ZLog, filepath.Join(viper.GetString("logsDir"), "influx_backup.lp.gz"))
		if err := Influx.Connect(); err != nil {
			Logger.Error("Failed to set up influx", "error", err)
			Influx = nil
		}
	}

	Monitor = monitor.NewService(monitor.Dependencies{
		Feed:       Feed,
		Board:      Board,
		Visits:     Visits,
		Influx:     Influx,
		LogManager: SlogManager,
		Interval:   viper.GetDuration("monitor.interval"),
		StatusPath: viper.GetString("monitor.statusPath"),
		VisitTTL:   viper.GetDuration("visits.idleTTL"),
	})

	if err = Feed.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to subscribe to markers: %w", err)
	}
	if err = Monitor.Start(); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}

	Server = httpapi.New(httpapi.Deps{
		Store:    Store,
		Feed:     Feed,
		Board:    Board,
		Index:    index,
		Visits:   Visits,
		Recorder: Recorder,
		Sink:     sinks,
		Uploader: uploader,
		Logger:   Logger,
	})

	listen := viper.GetString("http.listen")
	serveErr := make(chan error, 1)
	go func() {
		Logger.Info("Listening", "address", listen)
		if err := Server.Start(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	select {
	case s := <-sig:
		Logger.Info("Received signal, shutting down", "signal", s.String())
	case err, ok := <-serveErr:
		if ok {
			return fmt.Errorf("http server: %w", err)
		}
	}

	shutdown()
	return nil
}

// shutdown stops everything in reverse start order. Safe on a partial start.
func shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if Server != nil {
		if err := Server.Shutdown(ctx); err != nil {
			Logger.Error("Error shutting down http server", "error", err)
		}
	}
	if Monitor != nil {
		Monitor.Stop()
	}
	if Visits != nil {
		Visits.CloseAll()
	}
	if Feed != nil {
		Feed.Stop()
	}
	if Dispatcher != nil {
		Dispatcher.Close()
	}
	if Stream != nil {
		_ = Stream.Close()
	}
	if Influx != nil {
		if err := Influx.Close(); err != nil {
			Logger.Error("Error closing influx", "error", err)
		}
	}
	if Store != nil {
		if err := Store.Close(); err != nil {
			Logger.Error("Error closing storage", "error", err)
		}
	}

	Logger.Info("Shutdown complete")
	if err := SlogManager.Flush(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "log flush:", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintln(os.Stderr, "otel shutdown:", err)
		}
	}
	_ = SlogManager.Close()
	if LogFile != nil {
		_ = LogFile.Close()
	}
}
