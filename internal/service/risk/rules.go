package risk

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"eventcam/internal/model"

	"gopkg.in/yaml.v3"
)

// Priority decides which label a frame gets when both rules fire.
type Priority string

const (
	// PriorityProximity evaluates the proximity rule last and lets its
	// "collision" label replace a direct label trigger.
	PriorityProximity Priority = "proximity"
	// PriorityLabel keeps the direct trigger label when both rules fire.
	PriorityLabel Priority = "label"
)

// ErrInvalidPriority is returned for an unknown priority name.
var ErrInvalidPriority = errors.New("invalid risk priority")

// ParsePriority parses a priority name. An empty name means proximity.
func ParsePriority(s string) (Priority, error) {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case "", PriorityProximity:
		return PriorityProximity, nil
	case PriorityLabel:
		return PriorityLabel, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
	}
}

// Rules is the static rule configuration. It is loaded once and handed to
// NewEvaluator; it is never mutated while an evaluator built from it runs.
type Rules struct {
	TriggerLabels  []string         `yaml:"trigger_labels"`
	PersonLabels   []string         `yaml:"person_labels"`
	ForkliftLabels []string         `yaml:"forklift_labels"`
	PixelDistance  float64          `yaml:"pixel_distance"`
	Priority       Priority         `yaml:"priority"`
	Names          model.ClassNames `yaml:"names"`
}

// DefaultRules returns the warehouse rule set: every unsafe-act/condition
// class triggers directly, workers with or without workwear versus the
// forklift within 60 px triggers a collision.
func DefaultRules() Rules {
	ids := make([]int, 0, len(WarehouseNames))
	for id := range WarehouseNames {
		if id >= firstTriggerClass {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)

	triggers := make([]string, 0, len(ids))
	for _, id := range ids {
		triggers = append(triggers, WarehouseNames[id])
	}

	names := make(model.ClassNames, len(WarehouseNames))
	for id, name := range WarehouseNames {
		names[id] = name
	}

	return Rules{
		TriggerLabels:  triggers,
		PersonLabels:   []string{WarehouseNames[0], WarehouseNames[1]},
		ForkliftLabels: []string{WarehouseNames[3]},
		PixelDistance:  60,
		Priority:       PriorityProximity,
		Names:          names,
	}
}

// LoadRules reads a YAML rules file on top of base. Keys missing from the
// file keep the base value.
func LoadRules(path string, base Rules) (Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read rules file: %w", err)
	}

	var file Rules
	if err := yaml.Unmarshal(data, &file); err != nil {
		return base, fmt.Errorf("failed to parse rules file %s: %w", path, err)
	}

	rules := base
	if file.TriggerLabels != nil {
		rules.TriggerLabels = file.TriggerLabels
	}
	if file.PersonLabels != nil {
		rules.PersonLabels = file.PersonLabels
	}
	if file.ForkliftLabels != nil {
		rules.ForkliftLabels = file.ForkliftLabels
	}
	if file.PixelDistance > 0 {
		rules.PixelDistance = file.PixelDistance
	}
	if file.Priority != "" {
		priority, err := ParsePriority(string(file.Priority))
		if err != nil {
			return base, err
		}
		rules.Priority = priority
	}
	if file.Names != nil {
		rules.Names = file.Names
	}
	return rules, nil
}
