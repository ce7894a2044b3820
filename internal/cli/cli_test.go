package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/kaushal/internal/client"
	"github.com/okian/kaushal/internal/client/upload"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/metrics"
)

// testEnv points storage and the database at a temp dir.
func testEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("KAUSHAL_ADDR", ":8080")
	t.Setenv("KAUSHAL_QUEUE_SIZE", "100")
	t.Setenv("KAUSHAL_WORKER_COUNT", "2")
	t.Setenv("KAUSHAL_DB_DSN", filepath.Join(dir, "kaushal.db"))
	t.Setenv("KAUSHAL_STORAGE_ROOT", filepath.Join(dir, "uploads"))
	t.Setenv("KAUSHAL_SIMULATED_LATENCY_MIN_MS", "1")
	t.Setenv("KAUSHAL_SIMULATED_LATENCY_MAX_MS", "2")
	t.Setenv("KAUSHAL_WATCHDOG_INTERVAL_MS", "0")
}

func TestLoadConfig(t *testing.T) {
	convey.Convey("Given KAUSHAL_ environment variables", t, func() {
		testEnv(t)

		convey.Convey("Then configuration is loaded and logging initialized", func() {
			cfg, err := loadConfig(context.Background())
			convey.So(err, convey.ShouldBeNil)
			convey.So(cfg.Addr, convey.ShouldEqual, ":8080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 100)
			convey.So(cfg.WorkerCount, convey.ShouldEqual, 2)
		})

		convey.Convey("When the address is empty", func() {
			t.Setenv("KAUSHAL_ADDR", " ")

			convey.Convey("Then loading fails", func() {
				cfg, err := loadConfig(context.Background())
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the log level is unknown", func() {
			t.Setenv("KAUSHAL_LOG_LEVEL", "loud")

			convey.Convey("Then it falls back instead of failing", func() {
				_, err := loadConfig(context.Background())
				convey.So(err, convey.ShouldBeNil)
			})
		})
	})
}

func TestServerAssembly(t *testing.T) {
	convey.Convey("Given components built from configuration", t, func() {
		testEnv(t)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		cfg, err := loadConfig(ctx)
		convey.So(err, convey.ShouldBeNil)
		comps, err := build(ctx, cfg)
		convey.So(err, convey.ShouldBeNil)
		defer comps.close()
		convey.So(comps.svc.Start(ctx), convey.ShouldBeNil)
		defer comps.svc.Stop()

		srv := httptest.NewServer(newMux(ctx, cfg, comps.svc))
		defer srv.Close()
		api := client.New(srv.URL, client.WithIdentity("coach-1", "coach"))

		convey.Convey("Then health and docs are served", func() {
			convey.So(api.Health(ctx), convey.ShouldBeNil)
			for _, path := range []string{"/api-docs", "/openapi.yaml"} {
				resp, err := http.Get(srv.URL + path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
				_ = resp.Body.Close()
			}
		})

		convey.Convey("Then the catalog is seeded and assessments can be created", func() {
			tts, err := api.ListTestTypes(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(len(tts), convey.ShouldBeGreaterThan, 0)

			athleteID, err := resolveAthlete(ctx, api, "", "user-1")
			convey.So(err, convey.ShouldBeNil)
			tt, ok := testTypeName(tts, tts[0].Slug)
			convey.So(ok, convey.ShouldBeTrue)

			a, err := api.CreateAssessment(ctx, types.CreateAssessmentRequest{AthleteID: athleteID, TestTypeID: tt.ID})
			convey.So(err, convey.ShouldBeNil)
			convey.So(string(a.Status), convey.ShouldEqual, "pending")
		})

		convey.Convey("Then service metrics update from stats", func() {
			convey.So(func() { updateServiceMetrics(comps.svc) }, convey.ShouldNotPanic)
			stats, err := api.Stats(ctx)
			convey.So(err, convey.ShouldBeNil)
			convey.So(stats["started"], convey.ShouldEqual, true)
		})
	})
}

func TestResolveAthlete(t *testing.T) {
	convey.Convey("Given a client without athlete or user", t, func() {
		api := client.New("http://127.0.0.1:1")

		convey.Convey("Then resolving fails before any request", func() {
			_, err := resolveAthlete(context.Background(), api, "", "")
			convey.So(err, convey.ShouldNotBeNil)
			convey.So(err.Error(), convey.ShouldContainSubstring, "--athlete or --user")
		})
	})
}

func TestRecordUploader(t *testing.T) {
	convey.Convey("Given a server that records the upload query", t, func() {
		queries := make(chan string, 1)
		mux := http.NewServeMux()
		mux.HandleFunc("POST /assessments/{id}/upload-video", func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.Copy(io.Discard, r.Body)
			queries <- r.URL.Query().Get("async")
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			_ = json.NewEncoder(w).Encode(types.Assessment{ID: r.PathValue("id"), Status: model.StatusProcessing})
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		convey.Convey("When the recorder uploads a clip", func() {
			data := []byte("clip bytes")
			res := recordUploader(client.New(srv.URL)).Upload(context.Background(), "a-1", upload.Clip{
				Name:            "take.webm",
				ContentType:     "video/webm",
				Body:            bytes.NewReader(data),
				Size:            int64(len(data)),
				DurationSeconds: 5,
			}).Wait()

			convey.Convey("Then it asks for an async upload and is accepted while processing", func() {
				convey.So(<-queries, convey.ShouldEqual, "true")
				convey.So(res.Kind, convey.ShouldEqual, upload.KindSuccess)
				convey.So(res.Accepted, convey.ShouldBeTrue)
				convey.So(res.Assessment.Status, convey.ShouldEqual, model.StatusProcessing)
			})
		})
	})
}

func TestMetricsUpdaters(t *testing.T) {
	convey.Convey("Given the metrics updaters", t, func() {
		convey.Convey("Then system metrics update without panicking", func() {
			convey.So(updateSystemMetrics, convey.ShouldNotPanic)
		})

		convey.Convey("Then the updater loops stop with their context", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			done := make(chan struct{})
			go func() {
				startSystemMetricsUpdater(ctx)
				close(done)
			}()
			select {
			case <-done:
			case <-time.After(time.Second):
			}
			convey.So(ctx.Err(), convey.ShouldNotBeNil)
		})

		convey.Convey("Then a metrics manager can be built on its own registry", func() {
			manager := metrics.NewManager(metrics.WithPrometheusRegistry(prometheus.NewRegistry()))
			convey.So(manager, convey.ShouldNotBeNil)
		})
	})
}

func TestApplyMetricsConfig(t *testing.T) {
	convey.Convey("Given metrics settings in the environment", t, func() {
		testEnv(t)
		t.Setenv("KAUSHAL_METRICS_ENABLED", "false")
		t.Setenv("KAUSHAL_METRICS_REFRESH_MS", "1500")
		convey.Reset(func() {
			metrics.SetEnabled(true)
			metrics.SetRefreshInterval(10 * time.Second)
		})

		convey.Convey("Then serve applies them to the recorders and updaters", func() {
			cfg, err := loadConfig(context.Background())
			convey.So(err, convey.ShouldBeNil)
			applyMetricsConfig(cfg)
			convey.So(metrics.RefreshInterval(), convey.ShouldEqual, 1500*time.Millisecond)

			registry := metrics.GetRegistry()
			before, err := registry.Gather()
			convey.So(err, convey.ShouldBeNil)
			metrics.UpdateQueueSize(12345)
			after, err := registry.Gather()
			convey.So(err, convey.ShouldBeNil)
			convey.So(gaugeValue(after, "kaushal_assessments_queue_size"), convey.ShouldEqual,
				gaugeValue(before, "kaushal_assessments_queue_size"))
		})
	})
}

func gaugeValue(families []*dto.MetricFamily, name string) float64 {
	for _, f := range families {
		if f.GetName() == name && len(f.GetMetric()) > 0 {
			return f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	return -1
}

func TestVersionCommand(t *testing.T) {
	convey.Convey("Given the root command", t, func() {
		var out bytes.Buffer
		root := Root()
		root.SetOut(&out)
		root.SetArgs([]string{"version"})

		convey.Convey("Then version prints the build version", func() {
			convey.So(root.Execute(), convey.ShouldBeNil)
			convey.So(strings.TrimSpace(out.String()), convey.ShouldEqual, "kaushal version "+Version)
		})

		convey.Convey("Then every subcommand is registered", func() {
			names := map[string]bool{}
			for _, c := range root.Commands() {
				names[c.Name()] = true
			}
			for _, n := range []string{"serve", "migrate", "record", "upload", "watch", "e2e", "version"} {
				convey.So(names[n], convey.ShouldBeTrue)
			}
		})
	})
}

func TestPrintResult(t *testing.T) {
	convey.Convey("Given a completed assessment", t, func() {
		score := 87.5
		a := types.Assessment{ID: "a-1", Status: "completed", PerformanceScore: &score,
			Metrics: []types.Metric{{Name: "sprint_time", Value: 4.21, Unit: "s"}}}
		var out bytes.Buffer
		cmd := Root()
		cmd.SetOut(&out)

		convey.Convey("Then the score and metrics are printed", func() {
			printResult(cmd, a)
			convey.So(out.String(), convey.ShouldContainSubstring, "assessment a-1: completed")
			convey.So(out.String(), convey.ShouldContainSubstring, "87.5")
			convey.So(out.String(), convey.ShouldContainSubstring, "sprint_time")
		})
	})
}
