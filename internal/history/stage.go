package history

import "strings"

// Stage represents one ordered phase of document processing.
type Stage string

const (
	StagePrelims    Stage = "prelims"
	StageProduction Stage = "production"
	StageQuality    Stage = "quality"
	StageDelivered  Stage = "delivered"
)

var stageOrder = []Stage{
	StagePrelims,
	StageProduction,
	StageQuality,
	StageDelivered,
}

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(stageOrder))
	for _, stage := range stageOrder {
		set[stage] = struct{}{}
	}
	return set
}()

// Stages returns the ordered list of known stages.
func Stages() []Stage {
	cp := make([]Stage, len(stageOrder))
	copy(cp, stageOrder)
	return cp
}

// FirstStage returns the stage every new file enters.
func FirstStage() Stage {
	return stageOrder[0]
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// Next returns the immediate successor in the fixed stage order. ok is false
// when the stage is terminal or unknown.
func (s Stage) Next() (Stage, bool) {
	for i, stage := range stageOrder {
		if stage == s && i+1 < len(stageOrder) {
			return stageOrder[i+1], true
		}
	}
	return "", false
}

// Terminal reports whether the stage ends a file's lifecycle.
func (s Stage) Terminal() bool {
	return s == StageDelivered
}

// Display returns the stage name used in CLI and notification output.
func (s Stage) Display() string {
	switch s {
	case StagePrelims:
		return "Prelims"
	case StageProduction:
		return "Production"
	case StageQuality:
		return "Quality"
	case StageDelivered:
		return "Delivered"
	default:
		return string(s)
	}
}
