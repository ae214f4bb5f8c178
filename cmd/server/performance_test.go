package main

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDashboard_ConcurrentSelections(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping performance test in short mode")
	}

	r, s := newTestServer(t, testOptions{})

	queries := []string{
		"",
		"?os=iOS",
		"?os=Android",
		"?gender=Male",
		"?gender=Female&os=iOS",
		"?gender=",
	}

	const rounds = 10
	var wg sync.WaitGroup
	codes := make(chan int, rounds*len(queries))

	start := time.Now()
	for i := 0; i < rounds; i++ {
		for _, q := range queries {
			wg.Add(1)
			go func(target string) {
				defer wg.Done()
				codes <- get(r, target).Code
			}("/api/dashboard" + q)
		}
	}
	wg.Wait()
	close(codes)
	elapsed := time.Since(start)

	for code := range codes {
		assert.Equal(t, http.StatusOK, code)
	}

	// the source is read once no matter how many requests race for it
	assert.Equal(t, int64(1), s.metrics.GetStats()["dataset_loads"])
	assert.Less(t, elapsed, 10*time.Second)
	t.Logf("%d dashboard requests in %v", rounds*len(queries), elapsed)
}

func BenchmarkDashboard(b *testing.B) {
	r, s := newTestServer(b, testOptions{source: sampleCSV})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// measure the pipeline rather than the response cache
		s.responses.Clear()
		if w := get(r, "/api/dashboard?os=Android"); w.Code != http.StatusOK {
			b.Fatalf("status %d", w.Code)
		}
	}
}

func BenchmarkKPIsCached(b *testing.B) {
	r, _ := newTestServer(b, testOptions{source: sampleCSV})
	get(r, "/api/kpis?os=iOS")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if w := get(r, "/api/kpis?os=iOS"); w.Code != http.StatusOK {
			b.Fatalf("status %d", w.Code)
		}
	}
}
