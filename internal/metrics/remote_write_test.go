package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/prometheus/prompb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Kareem-Elnokali/system-creator/internal/config"
)

// One collector for the whole package: promauto registers against the default
// registry, and a second registration would collide.
func TestRemoteWriteFlush(t *testing.T) {
	var (
		mu     sync.Mutex
		bodies [][]byte
		orgs   []string
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, b)
		orgs = append(orgs, r.Header.Get("X-Scope-OrgID"))
		mu.Unlock()
	}))
	defer server.Close()

	c := NewCollector(config.MetricsConfig{
		RemoteWriteURL: server.URL,
		TenantHeader:   "X-Scope-OrgID",
		BatchSize:      1000,
		FlushInterval:  time.Second,
	}, zap.NewNop())

	c.RecordSync("tenant-a", true, 120*time.Millisecond)
	c.SetTenantUsage("tenant-a", "active_users", 42)

	require.NoError(t, c.flush())

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, bodies)
	assert.Contains(t, orgs, "tenant-a")

	raw, err := snappy.Decode(nil, bodies[0])
	require.NoError(t, err)

	var req prompb.WriteRequest
	require.NoError(t, req.Unmarshal(raw))
	require.NotEmpty(t, req.Timeseries)

	// Only tenant-labeled series leave the process.
	for _, ts := range req.Timeseries {
		var tagged bool
		for _, l := range ts.Labels {
			if l.Name == "tenant_id" {
				tagged = true
			}
		}
		assert.True(t, tagged)
	}

	// A failing endpoint surfaces as a flush error instead of vanishing.
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "out of space", http.StatusInternalServerError)
	}))
	defer failing.Close()

	c.config.RemoteWriteURL = failing.URL
	assert.Error(t, c.flush())
}
