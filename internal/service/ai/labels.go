package ai

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"eventcam/internal/model"
)

// LoadLabels reads a class list with one label per line; the line number
// (from 0) is the class id. Blank lines leave their id unnamed.
func LoadLabels(path string) (model.ClassNames, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open labels file: %w", err)
	}
	defer file.Close()

	names := make(model.ClassNames)
	scanner := bufio.NewScanner(file)
	for id := 0; scanner.Scan(); id++ {
		if label := strings.TrimSpace(scanner.Text()); label != "" {
			names[id] = label
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read labels file %s: %w", path, err)
	}
	return names, nil
}
