// Package ingest stores images reported by external detectors and forwards
// them as events.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"eventcam/internal/logger"
	"eventcam/internal/metrics"
	"eventcam/internal/model"
	"eventcam/internal/service/recorder"

	"github.com/google/uuid"
)

// MaxImageSize bounds a single uploaded image.
const MaxImageSize = 16 << 20

// ErrInvalidUpload is returned for a missing label or file name.
var ErrInvalidUpload = errors.New("invalid event upload")

// Publisher receives ingested events.
type Publisher interface {
	Publish(event model.Event) error
}

// Service writes "{label}_{filename}" into the event directory.
type Service struct {
	dir       string
	publisher Publisher
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time
}

func NewService(dir string, publisher Publisher, m *metrics.Metrics, logger *logger.Logger) *Service {
	return &Service{dir: dir, publisher: publisher, metrics: m, logger: logger, now: time.Now}
}

// Save stores the image read from r and publishes an image event.
func (s *Service) Save(label, filename string, r io.Reader) (model.Event, error) {
	label = strings.TrimSpace(label)
	base := filepath.Base(strings.TrimSpace(filename))
	if label == "" || base == "" || base == "." || base == string(filepath.Separator) {
		return model.Event{}, fmt.Errorf("%w: label and file name are required", ErrInvalidUpload)
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return model.Event{}, fmt.Errorf("failed to create event directory: %w", err)
	}

	file, path, err := createUnique(s.dir, fmt.Sprintf("%s_%s", recorder.SanitizeLabel(label), base))
	if err != nil {
		return model.Event{}, err
	}
	name := filepath.Base(path)
	size, err := io.Copy(file, io.LimitReader(r, MaxImageSize+1))
	closeErr := file.Close()
	if err == nil && size > MaxImageSize {
		err = fmt.Errorf("%w: image larger than %d bytes", ErrInvalidUpload, MaxImageSize)
	}
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return model.Event{}, fmt.Errorf("failed to save %s: %w", name, err)
	}

	event := model.Event{
		UUID:      uuid.NewString(),
		Kind:      model.EventImage,
		Label:     label,
		Filename:  name,
		FilePath:  path,
		FileSize:  size,
		Timestamp: s.now(),
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(event); err != nil {
			os.Remove(path)
			return model.Event{}, fmt.Errorf("failed to publish %s: %w", name, err)
		}
	}
	s.logger.Info("Event image received: %s (%s)", name, label)
	if s.metrics != nil {
		s.metrics.ImagesIngested.Add(1)
	}
	return event, nil
}

// createUnique creates dir/name without replacing an existing file. A taken
// name gets a "_n" suffix before the extension.
func createUnique(dir, name string) (*os.File, string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	path := filepath.Join(dir, name)
	for n := 1; ; n++ {
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
}
