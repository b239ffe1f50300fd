package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddlewareLabelsRouteTemplate(t *testing.T) {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.Use(Middleware)
	api.HandleFunc("/annotations/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, id := range []string{"ann_1", "ann_2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/annotations/"+id, nil))
	}

	if got := testutil.CollectAndCount(requestDuration); got < 1 {
		t.Fatalf("expected a series, got %d", got)
	}
	// Both requests land in one series keyed by the template, not the id.
	if !strings.Contains(metricText(t), `route="/api/annotations/{id}"`) {
		t.Error("route template label missing from exposition")
	}
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(elementsCreated)
	AddElementsCreated(3)
	if got := testutil.ToFloat64(elementsCreated) - before; got != 3 {
		t.Errorf("elements created delta = %v, want 3", got)
	}

	clients := testutil.ToFloat64(wsClients)
	ClientConnected()
	ClientConnected()
	ClientDisconnected()
	if got := testutil.ToFloat64(wsClients) - clients; got != 1 {
		t.Errorf("clients delta = %v, want 1", got)
	}

	CountMessage("presence.update")
	if got := testutil.ToFloat64(wsMessages.WithLabelValues("presence.update")); got < 1 {
		t.Errorf("presence.update count = %v", got)
	}
}

func metricText(t *testing.T) string {
	t.Helper()
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}
