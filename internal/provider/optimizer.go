package provider

import (
	"context"
	"strings"
)

const maxCaptionChars = 2200

// CaptionOptimizer shapes a draft script into the caption published
// alongside the video. The scoring heuristics of the original planner
// are an external concern; this keeps only the normalization the
// pipeline depends on.
type CaptionOptimizer struct {
	hashtags []string
}

// NewCaptionOptimizer creates an optimizer appending the configured
// hashtags.
func NewCaptionOptimizer(hashtags []string) *CaptionOptimizer {
	return &CaptionOptimizer{hashtags: hashtags}
}

// Optimize normalizes whitespace, trims to the platform caption limit
// and appends hashtags.
func (o *CaptionOptimizer) Optimize(_ context.Context, draft string) (string, error) {
	lines := strings.Split(draft, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	caption := strings.Join(out, "\n")
	if len(caption) > maxCaptionChars {
		caption = caption[:maxCaptionChars]
	}

	if len(o.hashtags) > 0 {
		caption = caption + "\n" + strings.Join(o.hashtags, " ")
	}

	return caption, nil
}
