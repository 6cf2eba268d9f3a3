package detection

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/DennySORA/Remove-Background/pkg/client"
	"github.com/DennySORA/Remove-Background/pkg/types"
)

// DefaultPrompt asks the model for the box around the foreground subject
const DefaultPrompt = `You locate the foreground subject of a photo so its background can be removed.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0}
  },
  "description": "short neutral sentence (max 20 words)"
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner.
- The box must enclose the whole subject including hair, limbs and held objects.
- If several objects belong together (a person and a bicycle), box them together.
- If there is no clear subject, return label "none" with the full-frame box {"x":0,"y":0,"w":1,"h":1}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

var (
	reBlock    = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLine     = regexp.MustCompile(`(?m)^\s*//.*$`)
	reTrailing = regexp.MustCompile(`,(\s*[}\]])`)
)

// fullFrame is what callers get when the model gives nothing usable
var fullFrame = types.Box{X: 0, Y: 0, W: 1, H: 1}

// Locator asks a vision model where the subject is
type Locator struct {
	client client.VisionClient
	prompt string
}

// NewLocator creates a locator with the default prompt
func NewLocator(c client.VisionClient) *Locator {
	return &Locator{client: c, prompt: DefaultPrompt}
}

// NewLocatorWithPrompt creates a locator with a custom prompt
func NewLocatorWithPrompt(c client.VisionClient, prompt string) *Locator {
	return &Locator{client: c, prompt: prompt}
}

// LocateSubject returns the subject box for a base64 JPEG.
// Transport errors are returned; unparseable replies degrade to a "none" subject.
func (l *Locator) LocateSubject(ctx context.Context, model, imageB64 string) (*types.SubjectResult, error) {
	raw, err := l.client.Query(ctx, model, l.prompt, imageB64)
	if err != nil {
		return nil, err
	}
	return ParseSubject(raw), nil
}

// ParseSubject turns model output into a SubjectResult
func ParseSubject(raw string) *types.SubjectResult {
	cleaned := SanitizeModelJSON(raw)
	if !strings.HasPrefix(cleaned, "{") {
		return fallback(fmt.Sprintf("model returned non-JSON response (%d bytes)", len(raw)))
	}

	var result types.SubjectResult
	if err := json.Unmarshal([]byte(cleaned), &result); err != nil {
		return fallback("failed to parse model response")
	}

	result.Primary.Label = strings.ToLower(strings.TrimSpace(result.Primary.Label))
	result.Primary.Confidence = clamp(result.Primary.Confidence, 0, 1)
	result.Primary.Box = NormalizeBox(result.Primary.Box)
	if result.Primary.Label == "" {
		result.Primary.Label = "subject"
	}
	if result.Primary.Box.W == 0 || result.Primary.Box.H == 0 {
		result.Primary.Label = "none"
		result.Primary.Box = fullFrame
	}
	return &result
}

func fallback(description string) *types.SubjectResult {
	return &types.SubjectResult{
		Primary: types.Primary{
			Label:      "none",
			Confidence: 0,
			Box:        fullFrame,
		},
		Description: description,
	}
}

// SanitizeModelJSON removes code fences, comments, and trailing commas from JSON response
func SanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	// Strip triple-backtick fences if present
	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.Trim(strings.TrimSpace(raw), "`")

	raw = reBlock.ReplaceAllString(raw, "")
	raw = reLine.ReplaceAllString(raw, "")
	raw = reTrailing.ReplaceAllString(raw, "$1")

	// Keep only the outermost {...}
	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}

// NormalizeBox clamps a box into the unit square
func NormalizeBox(b types.Box) types.Box {
	x := clamp(b.X, 0, 1)
	y := clamp(b.Y, 0, 1)
	return types.Box{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 1-x),
		H: clamp(b.H, 0, 1-y),
	}
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
