package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/Tknika/ctf-gameserver-mqtt/internal/adapters/http/api"
	"github.com/Tknika/ctf-gameserver-mqtt/internal/domain/types"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/logger"
	"github.com/Tknika/ctf-gameserver-mqtt/pkg/metrics"
)

func init() {
	_ = logger.Init(logger.WithWriter(io.Discard))
}

type mockDeps struct {
	status  types.Status
	started bool
	health  types.Health
	stats   map[string]interface{}
}

func (m *mockDeps) Status() (types.Status, bool)     { return m.status, m.started }
func (m *mockDeps) Health() types.Health             { return m.health }
func (m *mockDeps) GetStats() map[string]interface{} { return m.stats }

func newMux(deps *mockDeps) *http.ServeMux {
	mux := http.NewServeMux()
	api.NewServer(deps).Register(context.Background(), mux)
	return mux
}

func serve(mux *http.ServeMux, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := &mockDeps{health: types.Health{Status: types.HealthOK, Running: true, Phase: "running", PublisherHealthy: true}}
		mux := newMux(deps)

		Convey("When the service is healthy", func() {
			rec := serve(mux, http.MethodGet, "/healthz")

			Convey("Then it should answer 200 with the health body", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				var body types.Health
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body.Phase, ShouldEqual, "running")
				So(body.PublisherHealthy, ShouldBeTrue)
			})
		})

		Convey("When the publisher is degraded", func() {
			deps.health = types.Health{Status: types.HealthDegraded, ConsecutivePublishFailures: 5}
			rec := serve(mux, http.MethodGet, "/healthz")

			Convey("Then it should answer 503", func() {
				So(rec.Code, ShouldEqual, http.StatusServiceUnavailable)
				So(rec.Body.String(), ShouldContainSubstring, `"consecutive_publish_failures":5`)
			})
		})

		Convey("When using a method other than GET", func() {
			rec := serve(mux, http.MethodPost, "/healthz")

			Convey("Then it should answer 405", func() {
				So(rec.Code, ShouldEqual, http.StatusMethodNotAllowed)
				So(rec.Header().Get("Allow"), ShouldEqual, "GET, HEAD")
			})
		})
	})
}

func TestStatusEndpoint(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := &mockDeps{}
		mux := newMux(deps)

		Convey("When the game has not started", func() {
			rec := serve(mux, http.MethodGet, "/status")

			Convey("Then it should answer 204 with no body", func() {
				So(rec.Code, ShouldEqual, http.StatusNoContent)
				So(rec.Body.Len(), ShouldEqual, 0)
			})
		})

		Convey("When a status event has been published", func() {
			deps.started = true
			deps.status = types.Status{Type: "T", Active: true, SSID: 3, TeamList: []types.TeamEntry{{TID: 1, SLA: 99}}}
			rec := serve(mux, http.MethodGet, "/status")

			Convey("Then it should return the payload with subscriber keys", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				var body map[string]interface{}
				So(json.Unmarshal(rec.Body.Bytes(), &body), ShouldBeNil)
				So(body["type"], ShouldEqual, "T")
				So(body["ssid"], ShouldEqual, float64(3))
				teams := body["teamlist"].([]interface{})
				So(teams[0].(map[string]interface{})["SLA"], ShouldEqual, float64(99))
			})
		})
	})
}

func TestStatsAndMetricsEndpoints(t *testing.T) {
	Convey("Given the API server", t, func() {
		deps := &mockDeps{stats: map[string]interface{}{"phase": "finished", "iterations": 12}}
		mux := newMux(deps)

		Convey("When requesting stats", func() {
			rec := serve(mux, http.MethodGet, "/stats")

			Convey("Then it should return the loop statistics", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldStartWith, "application/json")
				So(rec.Body.String(), ShouldContainSubstring, `"phase":"finished"`)
			})
		})

		Convey("When requesting metrics after some traffic", func() {
			metrics.RecordEventEmitted("S")
			_ = serve(mux, http.MethodGet, "/stats")
			rec := serve(mux, http.MethodGet, "/metrics")

			Convey("Then the custom registry is exposed", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				body := rec.Body.String()
				So(strings.Contains(body, "ctf_status_events_emitted_total"), ShouldBeTrue)
				So(strings.Contains(body, `endpoint="stats"`), ShouldBeTrue)
			})
		})
	})
}
