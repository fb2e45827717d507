package handler

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"eventcam/internal/config"
	"eventcam/internal/dto"
	"eventcam/internal/logger"
	"eventcam/internal/repository"
	"eventcam/internal/service/ingest"

	"github.com/gorilla/mux"
)

// IngestEventHandler accepts POST /event with a multipart "label" field and
// an "image" file from external detectors.
func IngestEventHandler(svc *ingest.Service, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, ingest.MaxImageSize+(1<<20))

		label := r.FormValue("label")
		file, header, err := r.FormFile("image")
		if err != nil || label == "" {
			logger.Warning("Rejected event upload: label=%q err=%v", label, err)
			writeJSON(w, http.StatusBadRequest, map[string]string{"status": "fail"})
			return
		}
		defer file.Close()

		if _, err := svc.Save(label, header.Filename, file); err != nil {
			code := http.StatusInternalServerError
			if errors.Is(err, ingest.ErrInvalidUpload) {
				code = http.StatusBadRequest
			}
			logger.Error("Failed to store event image: %v", err)
			writeJSON(w, code, map[string]string{"status": "fail"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// GetEventsHandler returns a filtered, paginated list of indexed events.
func GetEventsHandler(cfg *config.Config, logger *logger.Logger, repo repository.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		page := atoiDefault(q.Get("page"), 1)
		limit := atoiDefault(q.Get("limit"), 24)

		filter := &dto.EventFilters{
			Label:      q.Get("label"),
			Kind:       q.Get("kind"),
			DateAfter:  parseDate(q.Get("dateAfter")),
			DateBefore: parseDate(q.Get("dateBefore")),
			TimeAfter:  parseTimeOfDay(q.Get("timeAfter")),
			TimeBefore: parseTimeOfDay(q.Get("timeBefore")),
			Limit:      limit,
			Offset:     (page - 1) * limit,
		}

		events, err := repo.GetAll(filter)
		if err != nil {
			logger.Error("Error querying events from database: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}

		totalCount, err := repo.GetTotalCount(filter)
		if err != nil {
			logger.Error("Error counting events: %v", err)
			totalCount = len(events)
		}

		totalSize, err := repo.GetDirectorySize()
		if err != nil {
			logger.Error("Error getting event directory size: %v", err)
		}

		labels, err := repo.GetLabels()
		if err != nil {
			logger.Error("Error listing labels: %v", err)
		}

		infos := make([]dto.EventInfo, 0, len(events))
		for _, e := range events {
			infos = append(infos, dto.EventInfo{
				Name:      e.Filename,
				Kind:      string(e.Kind),
				Label:     e.Label,
				Date:      e.Timestamp,
				TimeOfDay: e.Timestamp,
				Size:      e.FileSize,
				Frames:    e.Frames,
			})
		}

		writeJSON(w, http.StatusOK, dto.EventsData{
			Events:      infos,
			EventsDir:   cfg.EventDirectory,
			Size:        totalSize,
			Length:      totalCount,
			TotalPages:  (totalCount + limit - 1) / limit,
			CurrentPage: page,
			Limit:       limit,
			Labels:      labels,
		})
	}
}

// EventStatsHandler returns per-kind and per-label counts.
func EventStatsHandler(logger *logger.Logger, repo repository.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := repo.GetStats()
		if err != nil {
			logger.Error("Error computing event stats: %v", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

// ViewEventHandler serves a clip or image named by the "name" query parameter.
func ViewEventHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := eventName(r.URL.Query().Get("name"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.ServeFile(w, r, filepath.Join(cfg.EventDirectory, name))
	}
}

// DeleteEventHandler removes the event {name} from disk and from the index.
func DeleteEventHandler(cfg *config.Config, logger *logger.Logger, repo repository.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, err := eventName(mux.Vars(r)["name"])
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		filePath := filepath.Join(cfg.EventDirectory, name)
		if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
			logger.Error("Failed to delete file %s: %v", filePath, err)
		}
		if err := repo.DeleteByFilename(name); err != nil {
			logger.Error("Failed to delete from database: %v", err)
		}

		logger.Info("Deleted event: %s", name)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "filename": name})
	}
}

// ClearEventsHandler deletes every file in the event directory and clears the index.
func ClearEventsHandler(cfg *config.Config, logger *logger.Logger, repo repository.EventRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := os.ReadDir(cfg.EventDirectory)
		if err != nil && !os.IsNotExist(err) {
			logger.Error("Error reading event directory: %v", err)
			http.Error(w, "Unable to read event directory", http.StatusInternalServerError)
			return
		}

		for _, file := range files {
			if file.IsDir() {
				continue
			}
			if err := os.Remove(filepath.Join(cfg.EventDirectory, file.Name())); err != nil {
				logger.Error("Error deleting file %s: %v", file.Name(), err)
			}
		}

		if err := repo.DeleteAll(); err != nil {
			logger.Error("Error clearing database: %v", err)
		}

		logger.Info("All events cleared from directory: %s", cfg.EventDirectory)
		w.WriteHeader(http.StatusNoContent)
	}
}

// eventName accepts a bare file name and rejects anything with a path.
func eventName(name string) (string, error) {
	if name == "" {
		return "", errors.New("event name is required")
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", errors.New("invalid event name")
	}
	return name, nil
}

// atoiDefault converts string to int or returns a default when conversion fails or value <= 0.
func atoiDefault(s string, def int) int {
	if v, err := strconv.Atoi(s); err == nil && v > 0 {
		return v
	}
	return def
}

// parseDate parses a date string in the format "2006-01-02" (HTML input format).
func parseDate(v string) time.Time {
	if v == "" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// parseTimeOfDay parses "15:04" or "15:04:05" (HTML time input, with or without seconds).
func parseTimeOfDay(v string) time.Time {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t
		}
	}
	return time.Time{}
}
