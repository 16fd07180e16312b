package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := Registry()
	Init()
	if Registry() != first {
		t.Fatal("expected Init to keep the same registry")
	}
}

func TestObserveLinksSkipsNonPositive(t *testing.T) {
	before := testutil.ToFloat64(linksCounter(t, "github", "saved_test"))
	ObserveLinks("github", "saved_test", 0)
	ObserveLinks("github", "saved_test", 3)
	after := testutil.ToFloat64(linksCounter(t, "github", "saved_test"))
	if after-before != 3 {
		t.Fatalf("expected counter to grow by 3, got %f", after-before)
	}
}

func TestPushSendsRegistry(t *testing.T) {
	var hits atomic.Int32
	var path atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		path.Store(r.URL.Path)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	ObservePhase("export", 2*time.Second)
	if err := Push(context.Background(), srv.URL, "run-1"); err != nil {
		t.Fatalf("Push() error = %v", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one push, got %d", hits.Load())
	}
	got, _ := path.Load().(string)
	if !strings.Contains(got, "/job/"+PushJob) || !strings.Contains(got, "run_id/run-1") {
		t.Fatalf("unexpected push path %q", got)
	}
}

func TestPushReportsGatewayErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	if err := Push(context.Background(), srv.URL, ""); err == nil {
		t.Fatal("expected push error")
	}
}

func linksCounter(t *testing.T, kind, outcome string) prometheus.Counter {
	t.Helper()
	Init()
	return linksProcessedTotal.WithLabelValues(kind, outcome)
}
