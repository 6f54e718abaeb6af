package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Brutus88Ai/brutus-x-ai/internal/domain"
)

// FileArchiver downloads completed artifacts out of the provider's
// short-lived URLs into owned storage, returning the rewritten public
// URL stored on the job.
type FileArchiver struct {
	dir       string
	publicURL string
	client    *http.Client
	logger    *slog.Logger
}

// NewFileArchiver creates an archiver writing under dir and serving
// from publicURL.
func NewFileArchiver(dir, publicURL string, timeout time.Duration, logger *slog.Logger) *FileArchiver {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &FileArchiver{
		dir:       dir,
		publicURL: strings.TrimSuffix(publicURL, "/"),
		client:    &http.Client{Timeout: timeout},
		logger:    logger,
	}
}

// Archive fetches sourceURL and stores it as <dir>/<jobID>/<ts>.mp4.
func (a *FileArchiver) Archive(ctx context.Context, jobID, sourceURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build artifact request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", domain.NewProviderError("artifact", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", domain.NewProviderError("artifact",
			fmt.Errorf("artifact download returned %d", resp.StatusCode))
	}

	relPath := filepath.Join(jobID, fmt.Sprintf("%d.mp4", time.Now().UnixMilli()))
	fullPath := filepath.Join(a.dir, relPath)

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create artifact directory: %w", err)
	}

	f, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact file: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, resp.Body)
	if err != nil {
		os.Remove(fullPath)
		return "", domain.NewProviderError("artifact", fmt.Errorf("artifact download interrupted: %w", err))
	}

	a.logger.Info("Artifact archived",
		slog.String("job_id", jobID),
		slog.String("path", fullPath),
		slog.Int64("bytes", n),
	)

	return a.publicURL + "/" + filepath.ToSlash(relPath), nil
}
