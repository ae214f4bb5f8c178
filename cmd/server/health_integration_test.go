package main

import (
	"net/http"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthEndpoint_Degraded(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T) string
		wantCode string
	}{
		{
			name: "missing source",
			setup: func(t *testing.T) string {
				return filepath.Join(t.TempDir(), "absent.csv")
			},
		},
		{
			name: "source without required columns",
			setup: func(t *testing.T) string {
				path := filepath.Join(t.TempDir(), "bad.csv")
				require.NoError(t, os.WriteFile(path, []byte("User ID,Age\n1,20\n"), 0o644))
				return path
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newTestServer(t, testOptions{source: tt.setup(t)})

			w := get(r, "/health")
			require.Equal(t, http.StatusServiceUnavailable, w.Code)

			var body struct {
				Status string `json:"status"`
				Error  string `json:"error"`
			}
			decode(t, w, &body)
			assert.Equal(t, "degraded", body.Status)
			assert.NotEmpty(t, body.Error)

			for _, path := range []string{"/api/dashboard", "/api/kpis", "/api/filters"} {
				w = get(r, path)
				assert.Equal(t, http.StatusServiceUnavailable, w.Code, path)
				assert.Contains(t, w.Body.String(), "DATA_UNAVAILABLE", path)
			}
		})
	}
}

func TestHealthEndpoint_Recovers(t *testing.T) {
	source := filepath.Join(t.TempDir(), "user_behavior.csv")
	r, _ := newTestServer(t, testOptions{source: source})

	require.Equal(t, http.StatusServiceUnavailable, get(r, "/health").Code)

	raw, err := os.ReadFile(sampleCSV)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(source, raw, 0o644))

	// failed loads are not cached, so the next request reads the new file
	assert.Equal(t, http.StatusOK, get(r, "/health").Code)
}
