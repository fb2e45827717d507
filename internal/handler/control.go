package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"eventcam/internal/config"
	"eventcam/internal/logger"
	"eventcam/internal/service"
	"eventcam/internal/service/ai"
	"eventcam/internal/service/pump"
	"eventcam/internal/service/recorder"

	"github.com/gorilla/mux"
)

// SourceRequest is the body of POST /api/source/{kind}. Camera fields
// default to the configured camera.
type SourceRequest struct {
	Index *int   `json:"index,omitempty"`
	CSI   *bool  `json:"csi,omitempty"`
	Path  string `json:"path,omitempty"`
	URL   string `json:"url,omitempty"`
}

// ConnectSourceHandler connects a camera, file or url source, replacing the
// current one.
func ConnectSourceHandler(manager *service.Manager, cfg *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SourceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		var err error
		switch kind := mux.Vars(r)["kind"]; kind {
		case "camera":
			camera := service.CameraRequest{Index: cfg.CameraIndex, CSI: cfg.CameraCSI}
			if req.Index != nil {
				camera.Index = *req.Index
			}
			if req.CSI != nil {
				camera.CSI = *req.CSI
			}
			err = manager.ConnectCamera(camera)
		case "file":
			if req.Path == "" {
				writeError(w, http.StatusBadRequest, "path is required")
				return
			}
			err = manager.ConnectFile(req.Path)
		case "url":
			if req.URL == "" {
				writeError(w, http.StatusBadRequest, "url is required")
				return
			}
			err = manager.ConnectURL(req.URL)
		default:
			writeError(w, http.StatusNotFound, "unknown source kind "+kind)
			return
		}

		if err != nil {
			logger.Error("Failed to connect source: %v", err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, manager.Status())
	}
}

// DisconnectSourceHandler stops the pump and releases the source.
func DisconnectSourceHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Disconnect(); err != nil {
			writeError(w, statusFor(err), err.Error())
			return
		}
		logger.Info("Source disconnected on request")
		writeJSON(w, http.StatusOK, manager.Status())
	}
}

// TriggerHandler starts or extends a manual recording.
func TriggerHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.Trigger(); err != nil {
			logger.Warning("Manual trigger failed: %v", err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		logger.Info("🔴 Manual trigger")
		writeJSON(w, http.StatusOK, manager.Status())
	}
}

// SwitchModelHandler activates the model {name}.
func SwitchModelHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := manager.SwitchModel(mux.Vars(r)["name"]); err != nil {
			logger.Error("Model switch failed: %v", err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, manager.Status())
	}
}

// ToggleModelHandler switches to the next registered model.
func ToggleModelHandler(manager *service.Manager, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := manager.ToggleModel(); err != nil {
			logger.Error("Model toggle failed: %v", err)
			writeError(w, statusFor(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, manager.Status())
	}
}

// StatusHandler reports the source, model and recorder state.
func StatusHandler(manager *service.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, manager.Status())
	}
}

// statusFor maps control errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrNoSource), errors.Is(err, pump.ErrNoFrame):
		return http.StatusConflict
	case errors.Is(err, ai.ErrUnknownModel):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNoOpener):
		return http.StatusBadRequest
	case errors.Is(err, recorder.ErrSinkOpen):
		return http.StatusInternalServerError
	default:
		return http.StatusServiceUnavailable
	}
}
