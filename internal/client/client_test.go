package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/kaushal/internal/client"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
)

func TestClient(t *testing.T) {
	Convey("Given a stub API", t, func() {
		var seenUser, seenRole string
		mux := http.NewServeMux()
		mux.HandleFunc("POST /athletes", func(w http.ResponseWriter, r *http.Request) {
			seenUser = r.Header.Get("X-User-ID")
			seenRole = r.Header.Get("X-User-Role")
			var req types.CreateAthleteRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(types.Athlete{ID: "ath-1", UserID: req.UserID})
		})
		mux.HandleFunc("GET /assessments/{id}", func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("id") == "missing" {
				w.WriteHeader(http.StatusNotFound)
				_ = json.NewEncoder(w).Encode(types.ErrorResponse{Code: "not_found", Message: "assessment not found"})
				return
			}
			_ = json.NewEncoder(w).Encode(types.Assessment{ID: r.PathValue("id"), Status: model.StatusProcessing})
		})
		mux.HandleFunc("GET /test-types", func(w http.ResponseWriter, _ *http.Request) {
			_ = json.NewEncoder(w).Encode([]types.TestType{{Slug: "sprint"}, {Slug: "agility"}})
		})
		mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
		srv := httptest.NewServer(mux)
		defer srv.Close()

		c := client.New(srv.URL+"/", client.WithIdentity("coach-7", "coach"))
		ctx := context.Background()

		Convey("Requests carry the identity headers", func() {
			ath, err := c.CreateAthlete(ctx, types.CreateAthleteRequest{UserID: "u-1"})
			So(err, ShouldBeNil)
			So(ath.ID, ShouldEqual, "ath-1")
			So(seenUser, ShouldEqual, "coach-7")
			So(seenRole, ShouldEqual, "coach")
		})

		Convey("Reads decode the body", func() {
			a, err := c.GetAssessment(ctx, "as-1")
			So(err, ShouldBeNil)
			So(a.Status, ShouldEqual, model.StatusProcessing)

			tts, err := c.ListTestTypes(ctx)
			So(err, ShouldBeNil)
			So(len(tts), ShouldEqual, 2)
		})

		Convey("Error bodies become APIError", func() {
			_, err := c.GetAssessment(ctx, "missing")
			So(err, ShouldNotBeNil)
			So(client.IsStatus(err, http.StatusNotFound), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "not_found")
		})

		Convey("A failing health check reports the status", func() {
			So(client.IsStatus(c.Health(ctx), http.StatusServiceUnavailable), ShouldBeTrue)
		})

		Convey("The upload URL is rooted at the base URL", func() {
			So(c.UploadURL("as-1"), ShouldEqual, srv.URL+"/assessments/as-1/upload-video")
		})
	})
}
