package domain

import (
	"encoding/json"
	"fmt"
	"strings"
)

const maxPromptChars = 1000

// RenderPayload is the creator-supplied input for a render job. It is
// stored as an opaque JSON string on the job record and only decoded by
// the pipeline executor.
type RenderPayload struct {
	Topic           string `json:"topic"`
	PromptText      string `json:"prompt_text"`
	ScriptID        string `json:"script_id,omitempty"`
	Ratio           string `json:"ratio,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`
}

// Validate checks the payload before a job record is created.
func (p *RenderPayload) Validate() error {
	if strings.TrimSpace(p.Topic) == "" {
		return fmt.Errorf("%w: topic is required", ErrValidation)
	}
	if strings.TrimSpace(p.PromptText) == "" {
		return fmt.Errorf("%w: prompt_text is required", ErrValidation)
	}
	if len(p.PromptText) > maxPromptChars {
		return fmt.Errorf("%w: prompt_text exceeds %d characters", ErrValidation, maxPromptChars)
	}
	// Portrait-only output for short-form platforms.
	if p.Ratio != "" && p.Ratio != "720:1280" && p.Ratio != "1080:1920" {
		return fmt.Errorf("%w: ratio must be 720:1280 or 1080:1920", ErrValidation)
	}
	if p.DurationSeconds != 0 && p.DurationSeconds != 5 && p.DurationSeconds != 10 {
		return fmt.Errorf("%w: duration_seconds must be 5 or 10", ErrValidation)
	}
	return nil
}

// Encode marshals the payload to its stored JSON form.
func (p *RenderPayload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}
	return string(b), nil
}

// DecodePayload unmarshals a stored payload string.
func DecodePayload(raw string) (*RenderPayload, error) {
	var p RenderPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &p, nil
}
