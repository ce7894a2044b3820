package service_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/okian/kaushal/internal/adapters/collaborator"
	"github.com/okian/kaushal/internal/adapters/repository"
	"github.com/okian/kaushal/internal/adapters/storage"
	service "github.com/okian/kaushal/internal/app"
	"github.com/okian/kaushal/internal/domain/identity"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

type harness struct {
	svc       *service.Service
	store     *repository.SQLStore
	clipsRoot string
}

// newHarness builds a service over sqlite, disk storage and the simulated collaborator.
func newHarness(t *testing.T, opts ...service.Option) *harness {
	t.Helper()
	dir := t.TempDir()

	store, err := repository.Open(context.Background(), repository.DriverSQLite, filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	root := filepath.Join(dir, "clips")
	clips, err := storage.NewDiskStore(root)
	if err != nil {
		t.Fatalf("open clips: %v", err)
	}
	collab := collaborator.NewSimulated(collaborator.Settings{Seed: 7})

	base := []service.Option{service.WithWorkerCount(2), service.WithWatchdog(0, 5*time.Minute)}
	svc := service.New(store, clips, collab, append(base, opts...)...)
	t.Cleanup(func() {
		svc.Stop()
		_ = store.Close()
	})
	return &harness{svc: svc, store: store, clipsRoot: root}
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	if err := h.svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

// pendingAssessment creates an athlete and a pending sprint assessment.
func (h *harness) pendingAssessment(t *testing.T) types.Assessment {
	t.Helper()
	ctx := context.Background()
	age := 16
	ath, err := h.svc.CreateAthlete(ctx, types.CreateAthleteRequest{UserID: "u-1", Age: &age, PrimarySport: "football"})
	if err != nil {
		t.Fatalf("create athlete: %v", err)
	}
	a, err := h.svc.CreateAssessment(ctx, types.CreateAssessmentRequest{AthleteID: ath.ID, TestType: "sprint"})
	if err != nil {
		t.Fatalf("create assessment: %v", err)
	}
	return a
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		h := newHarness(t)

		Convey("Then stats report it stopped", func() {
			So(h.svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("When started", func() {
			h.start(t)

			Convey("Then the embedded catalog is seeded", func() {
				tts, err := h.svc.ListTestTypes(context.Background())
				So(err, ShouldBeNil)
				So(len(tts), ShouldEqual, 5)
			})

			Convey("Then starting again is a no-op", func() {
				So(h.svc.Start(context.Background()), ShouldBeNil)
			})

			Convey("Then stats include queue and status counts", func() {
				h.pendingAssessment(t)
				stats := h.svc.GetStats()
				So(stats["started"], ShouldEqual, true)
				So(stats["queueLength"], ShouldEqual, 0)
				So(stats["assessments"].(map[string]int)["pending"], ShouldEqual, 1)
			})

			Convey("Then it can be stopped and started again", func() {
				h.svc.Stop()
				So(h.svc.GetStats()["started"], ShouldEqual, false)
				So(h.svc.Start(context.Background()), ShouldBeNil)
			})
		})
	})
}

func TestService_ReferenceData(t *testing.T) {
	Convey("Given a started service", t, func() {
		h := newHarness(t)
		h.start(t)
		ctx := context.Background()

		Convey("When creating an athlete without a user id", func() {
			_, err := h.svc.CreateAthlete(ctx, types.CreateAthleteRequest{PrimarySport: "tennis"})

			Convey("Then it is rejected", func() {
				So(errors.Is(err, service.ErrInvalidInput), ShouldBeTrue)
			})
		})

		Convey("When the caller identity supplies the user id", func() {
			ictx := identity.WithIdentity(ctx, identity.Identity{UserID: "u-9", Role: "athlete"})
			ath, err := h.svc.CreateAthlete(ictx, types.CreateAthleteRequest{PrimarySport: "tennis"})

			Convey("Then the athlete belongs to the caller", func() {
				So(err, ShouldBeNil)
				So(ath.UserID, ShouldEqual, "u-9")
				got, err := h.svc.GetAthlete(ctx, ath.ID)
				So(err, ShouldBeNil)
				So(got.PrimarySport, ShouldEqual, "tennis")
			})
		})

		Convey("When an assessment names its test type loosely", func() {
			ath, _ := h.svc.CreateAthlete(ctx, types.CreateAthleteRequest{UserID: "u-1"})
			a, err := h.svc.CreateAssessment(ctx, types.CreateAssessmentRequest{AthleteID: ath.ID, TestType: "Vertical Jmp"})

			Convey("Then the catalog resolves it and the assessment is pending", func() {
				So(err, ShouldBeNil)
				So(a.Status, ShouldEqual, "pending")
				tt, err := h.store.GetTestType(ctx, a.TestTypeID)
				So(err, ShouldBeNil)
				So(tt.Slug, ShouldEqual, "vertical_jump")
			})
		})

		Convey("When the test type cannot be resolved", func() {
			ath, _ := h.svc.CreateAthlete(ctx, types.CreateAthleteRequest{UserID: "u-1"})
			_, err := h.svc.CreateAssessment(ctx, types.CreateAssessmentRequest{AthleteID: ath.ID, TestType: "underwater hockey"})

			Convey("Then it reports an unknown test type", func() {
				So(errors.Is(err, service.ErrUnknownTestType), ShouldBeTrue)
			})
		})

		Convey("When the athlete does not exist", func() {
			_, err := h.svc.CreateAssessment(ctx, types.CreateAssessmentRequest{AthleteID: "nope", TestType: "sprint"})

			Convey("Then it reports not found", func() {
				So(errors.Is(err, service.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("When a custom test type is added", func() {
			tt, err := h.svc.CreateTestType(ctx, types.CreateTestTypeRequest{Name: "Shuttle Run", Category: "agility"})

			Convey("Then it gets a slug and becomes resolvable", func() {
				So(err, ShouldBeNil)
				So(tt.Slug, ShouldEqual, "shuttle_run")
				ath, _ := h.svc.CreateAthlete(ctx, types.CreateAthleteRequest{UserID: "u-1"})
				a, err := h.svc.CreateAssessment(ctx, types.CreateAssessmentRequest{AthleteID: ath.ID, TestType: "shuttle run"})
				So(err, ShouldBeNil)
				So(a.TestTypeID, ShouldEqual, tt.ID)
			})
		})
	})
}
