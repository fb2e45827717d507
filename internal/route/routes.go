package route

import (
	"net/http"

	"eventcam/internal/config"
	"eventcam/internal/handler"
	"eventcam/internal/logger"
	"eventcam/internal/metrics"
	"eventcam/internal/middleware"
	"eventcam/internal/repository"
	"eventcam/internal/service"
	"eventcam/internal/service/ingest"
	"eventcam/internal/service/websocket"

	"github.com/gorilla/mux"
)

// Services holds what the handlers need.
type Services struct {
	Manager *service.Manager
	Ingest  *ingest.Service
	Hub     *websocket.HubService
	Events  repository.EventRepository
	Metrics *metrics.Metrics
}

// SetupRoutes registers the ingestion, control, event, viewer, log and
// metrics endpoints. Everything under /api and /logs requires the API key
// when one is configured.
func SetupRoutes(s Services, cfg *config.Config, logger *logger.Logger) http.Handler {
	router := mux.NewRouter()

	// External detectors post here without a key.
	router.HandleFunc("/event", handler.IngestEventHandler(s.Ingest, logger)).Methods(http.MethodPost)
	router.Handle("/metrics", s.Metrics.Handler()).Methods(http.MethodGet)

	auth := middleware.APIKeyMiddleware(cfg.APIKey)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth)

	api.HandleFunc("/status", handler.StatusHandler(s.Manager)).Methods(http.MethodGet)
	api.HandleFunc("/source/{kind}", handler.ConnectSourceHandler(s.Manager, cfg, logger)).Methods(http.MethodPost)
	api.HandleFunc("/source", handler.DisconnectSourceHandler(s.Manager, logger)).Methods(http.MethodDelete)
	api.HandleFunc("/trigger", handler.TriggerHandler(s.Manager, logger)).Methods(http.MethodPost)
	api.HandleFunc("/model/toggle", handler.ToggleModelHandler(s.Manager, logger)).Methods(http.MethodPost)
	api.HandleFunc("/model/{name}", handler.SwitchModelHandler(s.Manager, logger)).Methods(http.MethodPost)

	api.HandleFunc("/events", handler.GetEventsHandler(cfg, logger, s.Events)).Methods(http.MethodGet)
	api.HandleFunc("/events", handler.ClearEventsHandler(cfg, logger, s.Events)).Methods(http.MethodDelete)
	api.HandleFunc("/events/stats", handler.EventStatsHandler(logger, s.Events)).Methods(http.MethodGet)
	api.HandleFunc("/events/view", handler.ViewEventHandler(cfg)).Methods(http.MethodGet)
	api.HandleFunc("/events/{name}", handler.DeleteEventHandler(cfg, logger, s.Events)).Methods(http.MethodDelete)

	api.HandleFunc("/view", handler.ViewWebsocketHandler(s.Hub, logger))

	logs := router.PathPrefix("/logs").Subrouter()
	logs.Use(auth)
	logs.HandleFunc("/{level}", handler.ShowLogsHandler(cfg)).Methods(http.MethodGet)
	logs.HandleFunc("/{level}", handler.ClearLogsHandler(logger)).Methods(http.MethodDelete)

	return router
}
