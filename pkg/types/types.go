package types

import "time"

// MethodID identifies a registered background-removal method
type MethodID string

// SpeedClass is the speed/quality classification shown next to a method
type SpeedClass string

const (
	SpeedFast        SpeedClass = "fast"
	SpeedBalanced    SpeedClass = "balanced"
	SpeedHighQuality SpeedClass = "high-quality"
)

// Mode selects how the source images were shot
type Mode string

const (
	ModeGeneralPhoto Mode = "general-photo"
	ModeGreenScreen  Mode = "green-screen"
)

// ParseMode converts user input into a Mode
func ParseMode(s string) (Mode, bool) {
	switch Mode(s) {
	case ModeGeneralPhoto, "":
		return ModeGeneralPhoto, true
	case ModeGreenScreen:
		return ModeGreenScreen, true
	}
	return "", false
}

// MethodDescriptor describes one entry of the strategy catalog
type MethodDescriptor struct {
	ID                  MethodID   `json:"id"`
	DisplayName         string     `json:"display_name"`
	Description         string     `json:"description"`
	DefaultStrength     float64    `json:"default_strength"`
	MinStrength         float64    `json:"min_strength"`
	MaxStrength         float64    `json:"max_strength"`
	SpeedClass          SpeedClass `json:"speed_class"`
	SupportsGreenScreen bool       `json:"supports_green_screen"`
}

// InBounds reports whether strength lies within the declared bounds
func (d MethodDescriptor) InBounds(strength float64) bool {
	return strength >= d.MinStrength && strength <= d.MaxStrength
}

// JobConfiguration is the validated, immutable input of one batch
type JobConfiguration struct {
	SourceFolder string
	OutputFolder string
	Method       MethodID
	Strength     float64
	Mode         Mode
}

// TaskStatus tracks the lifecycle of a single image in a batch
type TaskStatus string

const (
	StatusPending TaskStatus = "pending"
	StatusSuccess TaskStatus = "success"
	StatusFailed  TaskStatus = "failed"
	StatusSkipped TaskStatus = "skipped"
)

// ImageTask is the unit of work for one input image
type ImageTask struct {
	SourcePath      string
	DestinationPath string
	Status          TaskStatus
	Reason          string
	Detail          string
}

// Failure records why one image failed
type Failure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
	Detail string `json:"detail,omitempty"`
}

// BatchResult is the summary of one batch run
type BatchResult struct {
	ID             string    `json:"id"`
	Method         MethodID  `json:"method"`
	OutputFolder   string    `json:"output_folder"`
	StartedAt      time.Time `json:"started_at"`
	Total          int       `json:"total"`
	Succeeded      int       `json:"succeeded"`
	Failed         int       `json:"failed"`
	Skipped        int       `json:"skipped"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Failures       []Failure `json:"failures"`
}

// ProgressEvent is emitted after each task resolves
type ProgressEvent struct {
	BatchID   string
	Completed int
	Total     int
	Path      string
	Status    TaskStatus
	Reason    string
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Primary represents the primary subject detected in an image
type Primary struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
}

// SubjectResult is what a vision model reports about the foreground subject
type SubjectResult struct {
	Primary     Primary `json:"primary"`
	Description string  `json:"description"`
}
