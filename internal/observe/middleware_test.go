package observe

import (
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// routedHandler serves the same routes as the interview server behind the
// middleware.
func routedHandler(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()
	exp := useTestTracer(t)
	m, reader := newTestMetrics(t)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return Middleware(m)(mux), reader, exp
}

func serve(h http.Handler, path string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_SpanNamedByRoute(t *testing.T) {
	h, _, exp := routedHandler(t)

	tests := []struct {
		path       string
		wantName   string
		wantStatus int64
	}{
		{path: "/v1/sessions/abc", wantName: "HTTP GET /v1/sessions/{id}", wantStatus: 200},
		{path: "/v1/sessions/missing", wantName: "HTTP GET /v1/sessions/{id}", wantStatus: 404},
		{path: "/healthz", wantName: "HTTP GET /healthz", wantStatus: 200},
		{path: "/nope/123", wantName: "HTTP GET", wantStatus: 404},
	}
	for _, tt := range tests {
		serve(h, tt.path, nil)
	}

	spans := exp.GetSpans()
	if len(spans) != len(tests) {
		t.Fatalf("spans = %d, want %d", len(spans), len(tests))
	}
	for i, tt := range tests {
		s := spans[i]
		if s.Name != tt.wantName {
			t.Errorf("%s: span name = %q, want %q", tt.path, s.Name, tt.wantName)
		}
		if v, _ := attrOf(s, semconv.HTTPResponseStatusCodeKey); v.AsInt64() != tt.wantStatus {
			t.Errorf("%s: status attribute = %d, want %d", tt.path, v.AsInt64(), tt.wantStatus)
		}
	}
}

func TestMiddleware_DurationLabelledByRoute(t *testing.T) {
	h, reader, _ := routedHandler(t)

	for _, p := range []string{"/v1/sessions/a", "/v1/sessions/b", "/v1/sessions/c", "/unknown/x", "/unknown/y"} {
		serve(h, p, nil)
	}

	met := findMetric(collect(t, reader), "mockvox.http.request.duration")
	if met == nil {
		t.Fatal("duration metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok {
		t.Fatalf("duration metric is %T, want histogram", met.Data)
	}

	counts := map[string]uint64{}
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value("path")
		counts[path.AsString()] += dp.Count
	}
	want := map[string]uint64{"GET /v1/sessions/{id}": 3, unmatchedRoute: 2}
	if len(counts) != len(want) {
		t.Fatalf("path labels = %v, want %v", counts, want)
	}
	for label, n := range want {
		if counts[label] != n {
			t.Errorf("count[%q] = %d, want %d", label, counts[label], n)
		}
	}
}

func TestMiddleware_CorrelationID(t *testing.T) {
	h, _, _ := routedHandler(t)

	t.Run("new trace", func(t *testing.T) {
		rec := serve(h, "/healthz", nil)
		if got := rec.Header().Get("X-Correlation-ID"); len(got) != 32 {
			t.Errorf("X-Correlation-ID = %q, want a trace id", got)
		}
	})

	t.Run("continues incoming trace", func(t *testing.T) {
		const traceID = "4bf92f3577b34da6a3ce929d0e0e4736"
		rec := serve(h, "/healthz", http.Header{
			"Traceparent": {"00-" + traceID + "-00f067aa0ba902b7-01"},
		})
		if got := rec.Header().Get("X-Correlation-ID"); got != traceID {
			t.Errorf("X-Correlation-ID = %q, want %q", got, traceID)
		}
	})
}

func TestMiddleware_AllowsHijack(t *testing.T) {
	t.Parallel()
	m, _ := newTestMetrics(t)

	hijacked := make(chan error, 1)
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		conn, _, err := http.NewResponseController(w).Hijack()
		if err == nil {
			_ = conn.Close()
		}
		hijacked <- err
	}))
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	resp, err := http.Get(srv.URL)
	if err == nil {
		resp.Body.Close()
	}
	if err := <-hijacked; err != nil {
		t.Fatalf("hijack through middleware: %v", err)
	}
}
