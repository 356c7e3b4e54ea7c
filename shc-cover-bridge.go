package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zabeloliver/shc-cover-bridge/api"
	"github.com/zabeloliver/shc-cover-bridge/bridge"
	"github.com/zabeloliver/shc-cover-bridge/cover"
	"github.com/zabeloliver/shc-cover-bridge/history"
	"github.com/zabeloliver/shc-cover-bridge/registry"
	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcClient"
	"github.com/zabeloliver/shc-cover-bridge/shc-api/shcDevices"
)

const shutdownTimeout = 5 * time.Second

func NewLogger(level string, file string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.OutputPaths = []string{"stdout"}
	if file != "" {
		cfg.OutputPaths = append(cfg.OutputPaths, file)
	}
	if level != "" {
		lvl, err := zap.ParseAtomicLevel(level)
		if err != nil {
			return nil, err
		}
		cfg.Level = lvl
	}
	return cfg.Build()
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "configFile", "config.yaml", "Path to the config.yaml File.")
	flag.Parse()

	bootstrap, err := NewLogger("info", "")
	if err != nil {
		panic(err)
	}
	cfg, err := loadConfig(configPath, bootstrap.Sugar())
	if err != nil {
		bootstrap.Sugar().Fatalf("Loading configuration: %v", err)
	}

	logger, err := NewLogger(cfg.Log.Level, cfg.Log.File)
	if err != nil {
		bootstrap.Sugar().Fatalf("Building logger: %v", err)
	}
	sugar := logger.Sugar()
	defer sugar.Sync() // flushes buffer, if any

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, sugar); err != nil {
		sugar.Fatal(err)
	}
	sugar.Info("Stopped")
}

func run(ctx context.Context, cfg config, sugar *zap.SugaredLogger) error {
	sugar.Info("Starting SHC cover bridge")
	sugar.Info("Reading Crt-File")
	crt, err := os.ReadFile(cfg.Files.Certificate.Crt)
	if err != nil {
		return err
	}
	sugar.Info("Reading Key-File")
	key, err := os.ReadFile(cfg.Files.Certificate.Key)
	if err != nil {
		return err
	}

	client, err := shcClient.NewShcApiClient(cfg.Shc.Host, crt, key, sugar)
	if err != nil {
		return err
	}
	client.SetPollingTimeout(cfg.Shc.Polltimeout)

	session, err := shcDevices.NewSession(ctx, client, sugar)
	if err != nil {
		return err
	}

	reg, err := registry.Open(cfg.Registry)
	if err != nil {
		return err
	}
	defer reg.Close()

	platform := NewPlatform(reg, sugar)
	err = cover.SetupEntry(ctx, cover.NewSessionSource(session), cfg.Entry.Id,
		cover.MigrateToNewUniqueId(reg), platform.AddEntities)
	if err != nil {
		return err
	}
	entities := platform.Entities()
	rooms := createMapping(session.Rooms(), entities)
	sugar.Infof("Set up %d covers", len(entities))

	platform.OnChange(func(_ context.Context, e *cover.Entity) {
		s := e.Snapshot()
		sugar.Infof("%s %s Position: %d, State: %s, Room: %s", e.DeviceClass(), e.DeviceId(), s.Position, s.State, rooms[e.DeviceId()])
	})

	if cfg.Mqtt.Broker != "" {
		transport, err := bridge.Connect(cfg.Mqtt, sugar)
		if err != nil {
			return err
		}
		defer transport.Close()

		b := bridge.New(transport, platform, cfg.Mqtt, sugar)
		if err := b.Start(); err != nil {
			return err
		}
		for _, e := range entities {
			if err := b.Announce(e); err != nil {
				sugar.Errorf("Announcing %s: %v", e.UniqueId(), err)
			}
		}
		platform.OnChange(func(_ context.Context, e *cover.Entity) {
			if err := b.PublishState(e); err != nil {
				sugar.Errorf("Publishing %s: %v", e.UniqueId(), err)
			}
		})
	}

	if cfg.Influxdb.Host != "" {
		writer := history.New(cfg.Influxdb, sugar)
		defer writer.Close()
		platform.OnChange(func(ctx context.Context, e *cover.Entity) {
			if err := writer.Record(ctx, e.Snapshot(), rooms[e.DeviceId()]); err != nil {
				sugar.Error(err)
			}
		})
	}

	sugar.Info("Creating Metrics-Registry")
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewBuildInfoCollector())
	promReg.MustRegister(collectors.NewGoCollector())
	NewCoverMetrics(promReg, platform, rooms)

	server := &http.Server{
		Addr:              ":" + cfg.Http.Port,
		Handler:           api.NewRouter(api.New(platform, sugar), promhttp.HandlerFor(promReg, promhttp.HandlerOpts{Registry: promReg})),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sugar.Infof("Serving on %s", server.Addr)
	return serve(ctx, session, platform.DeviceChanged, func(ctx context.Context) error {
		return api.RunServer(ctx, server)
	}, sugar)
}

// eventSession is the controller session as seen by serve.
type eventSession interface {
	Listen(ctx context.Context, onChange func(deviceId string))
	Close(ctx context.Context) error
}

// serve listens for controller events while runServer runs. The poll loop
// owns the polling id, so the session unsubscribes only after it returned.
func serve(ctx context.Context, session eventSession, onChange func(deviceId string), runServer func(context.Context) error, sugar *zap.SugaredLogger) error {
	listenCtx, stopListening := context.WithCancel(ctx)
	defer stopListening()
	listening := make(chan struct{})
	go func() {
		defer close(listening)
		session.Listen(listenCtx, onChange)
	}()

	serveErr := runServer(ctx)

	stopListening()
	select {
	case <-listening:
	case <-time.After(shutdownTimeout):
		sugar.Warn("Event listener did not stop in time")
		return serveErr
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := session.Close(closeCtx); err != nil {
		sugar.Warnf("Unsubscribing: %v", err)
	}
	return serveErr
}
