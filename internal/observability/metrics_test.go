package observability

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Hooks(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	hooks := m.Hooks()

	hooks.OnRequest("openai", "streaming_chunks")
	hooks.OnResponse("openai", 200, 30*time.Millisecond, nil)
	hooks.OnChunk("openai")
	hooks.OnChunk("openai")
	hooks.OnResponse("claude", 429, time.Millisecond, nil)
	hooks.OnResponse("gemini", 0, time.Millisecond, errors.New("dial refused"))

	if got := testutil.ToFloat64(m.requests.WithLabelValues("openai", "streaming_chunks")); got != 1 {
		t.Errorf("requests = %v", got)
	}
	if got := testutil.ToFloat64(m.chunks.WithLabelValues("openai")); got != 2 {
		t.Errorf("chunks = %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("claude")); got != 1 {
		t.Errorf("failures for 4xx = %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("gemini")); got != 1 {
		t.Errorf("failures for transport error = %v", got)
	}
	if got := testutil.ToFloat64(m.failures.WithLabelValues("openai")); got != 0 {
		t.Errorf("failures for success = %v", got)
	}
}

func TestNewLogger_JSONWhenNotTerminal(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, false)
	logger.Info("dispatching", "provider", "openai")

	out := buf.String()
	if !strings.Contains(out, `"provider":"openai"`) {
		t.Errorf("output = %q, want JSON attributes", out)
	}

	buf.Reset()
	logger.Debug("hidden")
	if buf.Len() != 0 {
		t.Errorf("debug emitted at info level: %q", buf.String())
	}
}
