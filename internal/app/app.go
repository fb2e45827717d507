package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"eventcam/internal/config"
	"eventcam/internal/logger"
	"eventcam/internal/metrics"
	"eventcam/internal/model"
	"eventcam/internal/repository/sqlite"
	"eventcam/internal/route"
	"eventcam/internal/service"
	"eventcam/internal/service/ai"
	"eventcam/internal/service/ai/dnn"
	"eventcam/internal/service/ingest"
	"eventcam/internal/service/notify"
	"eventcam/internal/service/pump"
	"eventcam/internal/service/risk"
	"eventcam/internal/service/video"
	"eventcam/internal/service/websocket"
)

// ShutdownTimeout bounds the graceful HTTP shutdown.
const ShutdownTimeout = 10 * time.Second

type App struct {
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	db      *sqlite.DB
	events  *notify.Hub
	hub     *websocket.HubService
	mqtt    *notify.MQTTPublisher
	manager *service.Manager
	server  *http.Server
}

func NewApp() (*App, error) {
	cfg := config.Load()
	log := logger.NewLogger(cfg)
	m := metrics.New()

	rules, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	repo := sqlite.NewEventRepository(db)

	hub := websocket.NewHubService(log, m)

	events := notify.NewHub(log)
	events.Subscribe("index", notify.NewIndexer(repo, log))
	events.Subscribe("viewers", hub)

	var publisher *notify.MQTTPublisher
	if cfg.MQTTBroker != "" {
		publisher, err = notify.ConnectMQTT(notify.MQTTOptions{
			Broker:   cfg.MQTTBroker,
			ClientID: cfg.MQTTClientID,
			Topic:    cfg.MQTTTopic,
			QoS:      1,
		}, log)
		if err != nil {
			log.Warning("MQTT disabled: %v", err)
		} else {
			events.Subscribe("mqtt", publisher)
		}
	}

	registry, err := newRegistry(cfg, log)
	if err != nil {
		db.Close()
		return nil, err
	}

	manager := service.NewManager(service.ManagerOptions{
		EventDir:        cfg.EventDirectory,
		PreSeconds:      cfg.PreSeconds,
		PostSeconds:     cfg.PostSeconds,
		PreviewInterval: cfg.PreviewInterval,
		DefaultModel:    cfg.DefaultModel,
		Rules:           rules,
		Registry:        registry,
		Openers:         newOpeners(cfg),
		NewSink:         video.OpenClip,
		Annotator:       video.Annotator{},
		Publisher:       hub,
		Notifier:        events,
		Metrics:         m,
		Logger:          log,
	})
	if err := manager.LoadModel(); err != nil {
		log.Warning("Model %s not loaded yet: %v", cfg.DefaultModel, err)
	}

	router := route.SetupRoutes(route.Services{
		Manager: manager,
		Ingest:  ingest.NewService(cfg.EventDirectory, events, m, log),
		Hub:     hub,
		Events:  repo,
		Metrics: m,
	}, cfg, log)

	return &App{
		config:  cfg,
		logger:  log,
		metrics: m,
		db:      db,
		events:  events,
		hub:     hub,
		mqtt:    publisher,
		manager: manager,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

// loadRules builds the warehouse rule set, applies the environment
// overrides and then the optional rules file.
func loadRules(cfg *config.Config) (risk.Rules, error) {
	rules := risk.DefaultRules()
	if cfg.PixelDistance > 0 {
		rules.PixelDistance = cfg.PixelDistance
	}
	priority, err := risk.ParsePriority(cfg.RiskPriority)
	if err != nil {
		return rules, err
	}
	rules.Priority = priority

	if cfg.RulesPath == "" {
		return rules, nil
	}
	return risk.LoadRules(cfg.RulesPath, rules)
}

// newRegistry registers the det and seg models. A configured inference URL
// selects the remote server; otherwise the model file runs in OpenCV.
func newRegistry(cfg *config.Config, log *logger.Logger) (*ai.Registry, error) {
	var names model.ClassNames
	if cfg.LabelsPath != "" {
		labels, err := ai.LoadLabels(cfg.LabelsPath)
		if err != nil {
			return nil, err
		}
		names = labels
	}

	registry := ai.NewRegistry()
	models := []struct {
		name, url, path string
	}{
		{"det", cfg.InferenceURLDet, cfg.ModelPathDet},
		{"seg", cfg.InferenceURLSeg, cfg.ModelPathSeg},
	}
	for _, m := range models {
		m := m
		if m.url != "" {
			registry.Register(m.name, func() (ai.Detector, error) {
				return ai.NewRemoteDetector(m.name, m.url, cfg.Confidence, names), nil
			})
			continue
		}
		registry.Register(m.name, func() (ai.Detector, error) {
			d, err := dnn.New(dnn.Options{
				Name:       m.name,
				ModelPath:  m.path,
				Format:     cfg.ModelFormat,
				Confidence: cfg.Confidence,
				Names:      names,
			}, log)
			if err != nil {
				return nil, err
			}
			return d, nil
		})
	}
	return registry, nil
}

func newOpeners(cfg *config.Config) service.Openers {
	return service.Openers{
		Camera: func(req service.CameraRequest) (pump.Source, error) {
			return source(video.OpenCamera(video.CameraOptions{
				Index:  req.Index,
				CSI:    req.CSI,
				Width:  cfg.CameraWidth,
				Height: cfg.CameraHeight,
				FPS:    cfg.CameraFPS,
			}))
		},
		File: func(path string) (pump.Source, error) { return source(video.OpenFile(path)) },
		URL:  func(url string) (pump.Source, error) { return source(video.OpenURL(url)) },
	}
}

// source keeps a failed open from becoming a non-nil interface.
func source(c *video.Capture, err error) (pump.Source, error) {
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Run serves HTTP until ctx is canceled, then shuts everything down.
func (a *App) Run(ctx context.Context) error {
	bg, stop := context.WithCancel(context.Background())
	defer stop()

	go a.events.Run(bg)
	go a.hub.Run(bg)

	a.logger.Info("🚀 Event camera server")
	a.logger.Info("📍 URL: http://localhost:%d", a.config.Port)
	a.logger.Info("📁 Events: %s", a.config.EventDirectory)
	a.logger.Info("⏺  Pre-roll %.1fs, post-roll %.1fs", a.config.PreSeconds, a.config.PostSeconds)

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("HTTP shutdown failed: %v", err)
	}

	// The manager saves any clip in flight; its event still reaches the
	// hub before the hub drains.
	a.manager.Close()
	stop()
	<-a.events.Done()

	if a.mqtt != nil {
		a.mqtt.Disconnect()
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database: %v", err)
	}
	a.logger.Info("Server stopped")
	return serveErr
}
