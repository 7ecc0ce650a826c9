package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	m := New(nil)
	router := chi.NewRouter()
	router.Use(m.Middleware)
	router.Get("/api/recursos/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/api/recursos/1", "/api/recursos/2"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/api/recursos/{id}", "404")))
}

func TestDomainCounters(t *testing.T) {
	m := New(nil)

	m.AuthRejected("missing_token")
	m.RecoveryEvent("issued")
	m.Upload("document", nil)
	m.Upload("document", errors.New("boom"))
	m.Download()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthRejectionsTotal.WithLabelValues("missing_token")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecoveryTokensTotal.WithLabelValues("issued")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("document", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.UploadsTotal.WithLabelValues("document", "error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DownloadsTotal))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New(nil)
	m.Download()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "eduaventuras_downloads_total 1")
}
