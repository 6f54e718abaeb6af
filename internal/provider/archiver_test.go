package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileArchiver_Archive(t *testing.T) {
	ctx := context.Background()

	t.Run("downloads and rewrites the URL", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Write([]byte("fake video bytes"))
		}))
		defer srv.Close()

		dir := t.TempDir()
		a := NewFileArchiver(dir, "http://localhost:8080/artifacts/", time.Minute, discardLogger())

		publicURL, err := a.Archive(ctx, "job-1", srv.URL+"/v.mp4")
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(publicURL, "http://localhost:8080/artifacts/job-1/"))
		assert.True(t, strings.HasSuffix(publicURL, ".mp4"))

		entries, err := os.ReadDir(filepath.Join(dir, "job-1"))
		require.NoError(t, err)
		require.Len(t, entries, 1)

		data, err := os.ReadFile(filepath.Join(dir, "job-1", entries[0].Name()))
		require.NoError(t, err)
		assert.Equal(t, "fake video bytes", string(data))
	})

	t.Run("non-2xx download is an error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "gone", http.StatusGone)
		}))
		defer srv.Close()

		a := NewFileArchiver(t.TempDir(), "http://localhost:8080/artifacts", time.Minute, discardLogger())

		_, err := a.Archive(ctx, "job-1", srv.URL+"/v.mp4")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "410")
	})
}
