package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsManagerCreation(t *testing.T) {
	Convey("Given metrics manager creation", t, func() {
		Convey("When creating with default options on a private registry", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(WithPrometheusRegistry(registry))

			Convey("Then it should be created with the service namespace", func() {
				So(manager, ShouldNotBeNil)
				So(manager.namespace, ShouldEqual, "kaushal")
				So(manager.subsystem, ShouldEqual, "assessments")
			})
		})

		Convey("When creating with custom options", func() {
			registry := prometheus.NewRegistry()
			manager := NewManager(
				WithNamespace("test"),
				WithSubsystem("pipeline"),
				WithMetricPrefix("x"),
				WithHistogramBuckets([]float64{0.1, 0.5, 1.0}),
				WithMetricsEnabled(false),
				WithRefreshInterval(5*time.Second),
				WithCustomLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)
			manager.uploadsAccepted.Inc()

			Convey("Then the runtime options are kept", func() {
				So(manager.Enabled(), ShouldBeFalse)
				So(manager.RefreshInterval(), ShouldEqual, 5*time.Second)
			})

			Convey("Then the metric names carry namespace, subsystem and prefix", func() {
				families, err := registry.Gather()
				So(err, ShouldBeNil)
				found := false
				for _, f := range families {
					if f.GetName() == "test_pipeline_x_uploads_accepted_total" {
						found = true
						So(f.GetMetric()[0].GetLabel()[0].GetName(), ShouldEqual, "env")
					}
				}
				So(found, ShouldBeTrue)
			})
		})

		Convey("When empty options are passed", func() {
			m := NewManager(WithNamespace(""), WithSubsystem(""), WithPrometheusRegistry(prometheus.NewRegistry()))

			Convey("Then defaults are kept", func() {
				So(m.namespace, ShouldEqual, "kaushal")
				So(m.subsystem, ShouldEqual, "assessments")
				So(m.Enabled(), ShouldBeTrue)
				So(m.RefreshInterval(), ShouldEqual, defaultRefreshInterval)
			})
		})
	})
}

func TestMetricsRecording(t *testing.T) {
	Convey("Given the global metrics manager", t, func() {
		Convey("When recording pipeline events", func() {
			before := testutil.ToFloat64(globalManager.uploadsAccepted)
			RecordUploadAccepted(1024)
			RecordUploadRejected("wrong_mime")
			RecordTransition("processing")
			RecordFailure("timeout")
			RecordCollaboratorLatency("analysis", "ok", 120)
			RecordPersistLatency(3)
			UpdateAssessmentsByStatus("pending", 4)
			RecordStaleSwept(2)
			RecordNotification("published")

			Convey("Then counters and gauges move", func() {
				So(testutil.ToFloat64(globalManager.uploadsAccepted), ShouldEqual, before+1)
				So(testutil.ToFloat64(globalManager.uploadsRejected.WithLabelValues("wrong_mime")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.failures.WithLabelValues("timeout")), ShouldBeGreaterThanOrEqualTo, 1)
				So(testutil.ToFloat64(globalManager.assessmentsByStatus.WithLabelValues("pending")), ShouldEqual, 4)
			})
		})

		Convey("When recording queue and worker metrics", func() {
			UpdateQueueCapacity(10)
			UpdateQueueSize(5)
			UpdateQueueUtilization(0.5)
			RecordQueueEnqueue()
			RecordQueueDequeue()
			RecordQueueEnqueueError()
			UpdateWorkerCount(3)
			AddWorkerBusy(1)
			AddWorkerBusy(-1)
			RecordWorkerProcessingLatency(250)
			RecordWorkerError()

			Convey("Then gauges hold the last value", func() {
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 5)
				So(testutil.ToFloat64(globalManager.queueUtilization), ShouldEqual, 0.5)
				So(testutil.ToFloat64(globalManager.workerCount), ShouldEqual, 3)
				So(testutil.ToFloat64(globalManager.workerBusy), ShouldEqual, 0)
			})
		})

		Convey("When recording HTTP and system metrics", func() {
			So(func() {
				RecordHTTPRequest("assessments", "GET", "200")
				RecordHTTPRequestDuration("assessments", "GET", "200", 5.0)
				RecordErrorByComponent("queue", "queue_full")
				RecordErrorByEndpoint("upload", "POST", "client_error")
				UpdateSystemMemoryUsage(1 << 20)
				UpdateSystemGoroutineCount(12)
				RecordSystemGCPauseTime(0.3)
			}, ShouldNotPanic)
		})
	})
}

func TestGetRegistry(t *testing.T) {
	Convey("Given the custom registry", t, func() {
		RecordTransition("completed")
		families, err := GetRegistry().Gather()

		Convey("Then it exposes only service metrics", func() {
			So(err, ShouldBeNil)
			So(len(families), ShouldBeGreaterThan, 0)
			for _, f := range families {
				So(strings.HasPrefix(f.GetName(), "kaushal_assessments_"), ShouldBeTrue)
			}
		})
	})
}

func TestMetricsSwitches(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Reset(func() {
			SetEnabled(true)
			SetRefreshInterval(defaultRefreshInterval)
		})

		Convey("When recorders are disabled", func() {
			accepted := testutil.ToFloat64(globalManager.uploadsAccepted)
			UpdateQueueSize(7)
			SetEnabled(false)
			RecordUploadAccepted(2048)
			UpdateQueueSize(99)

			Convey("Then nothing moves until they are enabled again", func() {
				So(testutil.ToFloat64(globalManager.uploadsAccepted), ShouldEqual, accepted)
				So(testutil.ToFloat64(globalManager.queueSize), ShouldEqual, 7)

				SetEnabled(true)
				RecordUploadAccepted(2048)
				So(testutil.ToFloat64(globalManager.uploadsAccepted), ShouldEqual, accepted+1)
			})
		})

		Convey("When the refresh interval is set", func() {
			SetRefreshInterval(3 * time.Second)
			So(RefreshInterval(), ShouldEqual, 3*time.Second)

			Convey("Then non-positive values are ignored", func() {
				SetRefreshInterval(0)
				So(RefreshInterval(), ShouldEqual, 3*time.Second)
			})
		})
	})
}
