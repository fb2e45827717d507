package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// TimestampLayout is the timestamp part of clip names.
	TimestampLayout = "20060102_150405"
	// ClipExtension is the container extension of recorded clips.
	ClipExtension = ".mp4"
)

var labelReplacer = strings.NewReplacer("/", "-", "\\", "-", " ", "-", ":", "-", "\x00", "")

// SanitizeLabel makes a trigger label safe to use in a file name.
func SanitizeLabel(label string) string {
	label = labelReplacer.Replace(strings.TrimSpace(label))
	if label == "" || label == "." || label == ".." {
		return "event"
	}
	return label
}

// ClipName returns "{label}_{YYYYMMDD_HHMMSS}.mp4".
func ClipName(label string, at time.Time) string {
	return fmt.Sprintf("%s_%s%s", SanitizeLabel(label), at.Format(TimestampLayout), ClipExtension)
}

// ParseClipName splits a clip name into its label and timestamp. Labels may
// contain underscores; the timestamp is the last two parts, optionally
// followed by the "_n" collision suffix.
func ParseClipName(name string) (string, time.Time, error) {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	parts := strings.Split(base, "_")
	if len(parts) < 3 {
		return "", time.Time{}, fmt.Errorf("invalid clip name format: %s", name)
	}

	end := len(parts)
	if end >= 4 && isSuffix(parts[end-1]) {
		end--
	}

	stamp := parts[end-2] + "_" + parts[end-1]
	at, err := time.ParseInLocation(TimestampLayout, stamp, time.Local)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("invalid clip timestamp in %s: %w", name, err)
	}
	return strings.Join(parts[:end-2], "_"), at, nil
}

// isSuffix reports whether s is a collision counter, not a time part.
func isSuffix(s string) bool {
	if s == "" || len(s) >= len("150405") {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// uniquePath returns dir/name, adding a "_n" suffix when the file exists so
// that two sessions within the same second do not overwrite each other.
func uniquePath(dir, name string) string {
	path := filepath.Join(dir, name)
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
	}
}
