package provider

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// AssetGenerator composes preview image URLs from visual prompts. The
// upstream image service renders on GET, so generation is pure URL
// construction with no request of its own.
type AssetGenerator struct {
	baseURL string
	width   int
	height  int
}

// NewAssetGenerator creates a generator against the given image
// service base URL.
func NewAssetGenerator(baseURL string) *AssetGenerator {
	return &AssetGenerator{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		width:   720,
		height:  1280,
	}
}

// Generate returns the preview asset URL for a visual prompt.
func (g *AssetGenerator) Generate(_ context.Context, visualPrompt string) (string, error) {
	if strings.TrimSpace(visualPrompt) == "" {
		return "", fmt.Errorf("empty visual prompt")
	}

	return fmt.Sprintf("%s/prompt/%s?width=%d&height=%d",
		g.baseURL,
		url.PathEscape(visualPrompt),
		g.width,
		g.height,
	), nil
}
