package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoryCounters(t *testing.T) {
	m := New()

	m.StoryStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inFlight))

	m.StoryFinished("ok", 128*1024)
	m.StoryStarted()
	m.StoryFinished("timeout", 0)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.inFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stories.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stories.WithLabelValues("timeout")))
}

func TestProviderMetrics(t *testing.T) {
	m := New()
	m.ProviderCall("text", "ok", 1500*time.Millisecond)
	m.ProviderRetry("speech")
	m.ProviderRetry("speech")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.providerRetries.WithLabelValues("speech")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.providerDuration))
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.StoryStarted()
	m.StoryFinished("ok", 1024)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), `cuentos_stories_total{status="ok"} 1`))
}

func TestNewTwiceDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = New()
		_ = New()
	})
}
