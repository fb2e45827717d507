package main

import (
	"os"
	"path/filepath"
	"strings"

	"eventcam/internal/model"
	"eventcam/internal/service/recorder"
)

var imageExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// scanEvents builds index rows from the files in dir. Clips carry their
// label and time in the name; ingested images are "{label}_{filename}" and
// take the file time. Unrecognized files are returned as skipped.
func scanEvents(dir string) ([]model.Event, []string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, nil, err
	}

	var (
		events  []model.Event
		skipped []string
	)
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		name := file.Name()

		info, err := file.Info()
		if err != nil {
			skipped = append(skipped, name)
			continue
		}

		event := model.Event{
			Filename: name,
			FilePath: filepath.Join(dir, name),
			FileSize: info.Size(),
		}

		ext := strings.ToLower(filepath.Ext(name))
		switch {
		case ext == recorder.ClipExtension:
			label, at, err := recorder.ParseClipName(name)
			if err != nil {
				skipped = append(skipped, name)
				continue
			}
			event.Kind = model.EventClip
			event.Label = label
			event.Timestamp = at
		case imageExtensions[ext]:
			label, _, ok := strings.Cut(name, "_")
			if !ok || label == "" {
				skipped = append(skipped, name)
				continue
			}
			event.Kind = model.EventImage
			event.Label = label
			event.Timestamp = info.ModTime()
		default:
			skipped = append(skipped, name)
			continue
		}
		events = append(events, event)
	}
	return events, skipped, nil
}
