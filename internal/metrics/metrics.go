// Package metrics holds the server's Prometheus collectors.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tilescope_http_request_duration_seconds",
		Help:    "Duration of HTTP requests by route and status.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})

	elementsServed = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tilescope_elements_per_page",
		Help:    "Number of elements returned per element page.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	elementsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tilescope_elements_created_total",
		Help: "Elements stored through the API or the collaboration hub.",
	})

	wsClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tilescope_ws_clients",
		Help: "Connected collaboration clients.",
	})

	wsMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tilescope_ws_messages_total",
		Help: "Collaboration messages handled, by type.",
	}, []string{"type"})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

func ObserveElementPage(n int) {
	elementsServed.Observe(float64(n))
}

func AddElementsCreated(n int) {
	elementsCreated.Add(float64(n))
}

func ClientConnected() {
	wsClients.Inc()
}

func ClientDisconnected() {
	wsClients.Dec()
}

func CountMessage(msgType string) {
	wsMessages.WithLabelValues(msgType).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Middleware records request durations labelled with the matched route
// template.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		requestDuration.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Observe(time.Since(start).Seconds())
	})
}
