package pipeline

import (
	"strings"
)

const promptSuffix = "professional product videography, soft studio lighting, sharp focus, 4k"

const (
	defaultFraming  = "medium"
	defaultMovement = "static"
)

var framingPhrases = map[string]string{
	"close-up": "close-up shot",
	"medium":   "medium shot",
	"wide":     "wide establishing shot",
	"macro":    "extreme macro shot",
	"overhead": "overhead top-down shot",
}

var movementPhrases = map[string]string{
	"static":   "static camera",
	"pan":      "slow horizontal pan",
	"tilt":     "slow vertical tilt",
	"zoom-in":  "slow zoom in",
	"zoom-out": "slow zoom out",
	"orbit":    "smooth orbit around the product",
	"dolly":    "gentle dolly push in",
}

var classAliases = map[string]string{
	"closeup":     "close-up",
	"close":       "close-up",
	"mid":         "medium",
	"medium-shot": "medium",
	"top-down":    "overhead",
	"topdown":     "overhead",
	"zoom":        "zoom-in",
	"zoomin":      "zoom-in",
	"zoomout":     "zoom-out",
	"push-in":     "dolly",
	"still":       "static",
}

type ShotPrompt struct {
	Index    int    `json:"index"`
	Framing  string `json:"framing"`
	Movement string `json:"movement"`
	Focus    string `json:"focus"`
	Prompt   string `json:"prompt"`
	Duration int    `json:"duration"`
}

func normalizeClass(s string, known map[string]string, fallback string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("_", "-", " ", "-").Replace(s)
	if alias, ok := classAliases[s]; ok {
		s = alias
	}
	if _, ok := known[s]; ok {
		return s
	}
	return fallback
}

func NormalizeFraming(s string) string {
	return normalizeClass(s, framingPhrases, defaultFraming)
}

func NormalizeMovement(s string) string {
	return normalizeClass(s, movementPhrases, defaultMovement)
}

// describeProduct renders "<name> in <colors> made of <materials>".
func describeProduct(a ProductAnalysis) string {
	desc := strings.TrimSpace(a.ProductName)
	if colors := compact(a.Colors); len(colors) != 0 {
		desc += " in " + strings.Join(colors, " and ")
	}
	if materials := compact(a.Materials); len(materials) != 0 {
		desc += " made of " + strings.Join(materials, " and ")
	}
	return strings.TrimSpace(desc)
}

func compact(values []string) []string {
	ret := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			ret = append(ret, v)
		}
	}
	return ret
}

// BuildShotPrompt is pure: identical inputs give an identical prompt.
func BuildShotPrompt(index int, shot Shot, analysis ProductAnalysis, background string, defaultDuration int) ShotPrompt {
	framing := NormalizeFraming(shot.Framing)
	movement := NormalizeMovement(shot.Movement)
	focus := strings.TrimSpace(shot.Focus)
	if background = strings.TrimSpace(background); background == "" {
		background = strings.TrimSpace(analysis.Background)
	}

	parts := []string{framingPhrases[framing]}
	if focus != "" {
		parts = append(parts, "focusing on "+focus)
	}
	parts = append(parts, movementPhrases[movement])
	if product := describeProduct(analysis); product != "" {
		parts = append(parts, product)
	}
	if background != "" {
		parts = append(parts, background+" background")
	}
	parts = append(parts, promptSuffix)

	duration := shot.Duration
	if duration <= 0 {
		duration = defaultDuration
	}
	return ShotPrompt{
		Index:    index,
		Framing:  framing,
		Movement: movement,
		Focus:    focus,
		Prompt:   strings.Join(parts, ", "),
		Duration: duration,
	}
}
