package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/kaushal/internal/adapters/collaborator"
	"github.com/okian/kaushal/internal/adapters/http/api"
	"github.com/okian/kaushal/internal/adapters/repository"
	"github.com/okian/kaushal/internal/adapters/storage"
	service "github.com/okian/kaushal/internal/app"
	"github.com/okian/kaushal/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

const uploadLimit = 4096

func newTestServer(t *testing.T, opts ...api.ServerOption) *httptest.Server {
	t.Helper()
	dir := t.TempDir()
	store, err := repository.Open(context.Background(), repository.DriverSQLite, filepath.Join(dir, "api.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	clips, err := storage.NewDiskStore(filepath.Join(dir, "clips"))
	if err != nil {
		t.Fatalf("open clips: %v", err)
	}
	svc := service.New(store, clips, collaborator.NewSimulated(collaborator.Settings{Seed: 3}),
		service.WithWorkerCount(2),
		service.WithMaxUploadBytes(uploadLimit),
		service.WithWatchdog(0, 0),
	)
	if err := svc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	mux := http.NewServeMux()
	api.NewServer(svc, svc, append([]api.ServerOption{api.WithMaxUploadBytes(uploadLimit)}, opts...)...).
		Register(context.Background(), mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(func() {
		srv.Close()
		svc.Stop()
		_ = store.Close()
	})
	return srv
}

func doJSON(t *testing.T, method, url string, body any, out any) *http.Response {
	t.Helper()
	var rd io.Reader = http.NoBody
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, rd)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "u-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp
}

// multipartBody builds an upload with an optional duration field.
func multipartBody(contentType, filename string, clip []byte, duration string) (io.Reader, string) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if duration != "" {
		_ = mw.WriteField("duration", duration)
	}
	if clip != nil {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, filename))
		h.Set("Content-Type", contentType)
		part, _ := mw.CreatePart(h)
		_, _ = part.Write(clip)
	}
	_ = mw.Close()
	return &buf, mw.FormDataContentType()
}

func postUpload(t *testing.T, url string, body io.Reader, ct string, out any) *http.Response {
	t.Helper()
	resp, err := http.Post(url, ct, body)
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		_ = json.NewDecoder(resp.Body).Decode(out)
	}
	return resp
}

func createAssessment(t *testing.T, base string) types.Assessment {
	t.Helper()
	var ath types.Athlete
	doJSON(t, http.MethodPost, base+"/athletes", types.CreateAthleteRequest{UserID: "u-1", PrimarySport: "athletics"}, &ath)
	var a types.Assessment
	resp := doJSON(t, http.MethodPost, base+"/assessments", types.CreateAssessmentRequest{AthleteID: ath.ID, TestType: "sprint"}, &a)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create assessment: %d", resp.StatusCode)
	}
	return a
}

func TestReferenceRoutes(t *testing.T) {
	Convey("Given a running API", t, func() {
		srv := newTestServer(t)

		Convey("When creating and reading an athlete", func() {
			age := 15
			var created types.Athlete
			resp := doJSON(t, http.MethodPost, srv.URL+"/athletes", types.CreateAthleteRequest{UserID: "u-7", Age: &age}, &created)

			Convey("Then it round trips", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusCreated)
				var got types.Athlete
				resp := doJSON(t, http.MethodGet, srv.URL+"/athletes/"+created.ID, nil, &got)
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(*got.Age, ShouldEqual, 15)
			})
		})

		Convey("When the body has unknown fields", func() {
			resp, _ := http.Post(srv.URL+"/athletes", "application/json", strings.NewReader(`{"userId":"u","shoe":"42"}`))
			resp.Body.Close()

			Convey("Then it is a bad request", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
			})
		})

		Convey("When listing test types", func() {
			var tts []types.TestType
			resp := doJSON(t, http.MethodGet, srv.URL+"/test-types", nil, &tts)

			Convey("Then the seeded catalog is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(len(tts), ShouldEqual, 5)
			})
		})

		Convey("When an assessment is missing", func() {
			var e types.ErrorResponse
			resp := doJSON(t, http.MethodGet, srv.URL+"/assessments/nope", nil, &e)

			Convey("Then it is a 404 with a code", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
				So(e.Code, ShouldEqual, "not_found")
			})
		})

		Convey("When metrics and stats are scraped", func() {
			h, _ := http.Get(srv.URL + "/healthz")
			h.Body.Close()
			s, _ := http.Get(srv.URL + "/stats")
			s.Body.Close()

			Convey("Then both answer", func() {
				So(h.StatusCode, ShouldEqual, http.StatusOK)
				So(s.StatusCode, ShouldEqual, http.StatusOK)
			})
		})
	})
}

func TestUploadRoute(t *testing.T) {
	Convey("Given a pending assessment", t, func() {
		srv := newTestServer(t)
		a := createAssessment(t, srv.URL)
		uploadURL := srv.URL + "/assessments/" + a.ID + "/upload-video"

		Convey("When a clip is uploaded synchronously", func() {
			body, ct := multipartBody("video/webm", "clip.webm", []byte("sprint clip"), "12")
			var out types.UploadResponse
			resp := postUpload(t, uploadURL, body, ct, &out)

			Convey("Then the analysis result is returned", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				So(out.Message, ShouldEqual, "Video analyzed successfully")
				So(out.Assessment.Status, ShouldEqual, "completed")
				So(*out.Assessment.Duration, ShouldEqual, 12)
				So(out.AnalysisResult, ShouldNotBeEmpty)
			})

			Convey("Then the clip can be streamed back", func() {
				v, err := http.Get(srv.URL + "/assessments/" + a.ID + "/video")
				So(err, ShouldBeNil)
				defer v.Body.Close()
				b, _ := io.ReadAll(v.Body)
				So(v.StatusCode, ShouldEqual, http.StatusOK)
				So(string(b), ShouldEqual, "sprint clip")
			})

			Convey("Then a re-upload conflicts", func() {
				body, ct := multipartBody("video/webm", "clip.webm", []byte("again"), "")
				resp := postUpload(t, uploadURL, body, ct, nil)
				So(resp.StatusCode, ShouldEqual, http.StatusConflict)
			})
		})

		Convey("When the client asks for async processing", func() {
			body, ct := multipartBody("video/mp4", "clip.mp4", []byte("async"), "")
			var out types.Assessment
			resp := postUpload(t, uploadURL+"?async=true", body, ct, &out)

			Convey("Then it is accepted before analysis finishes", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusAccepted)
				So(out.Status, ShouldNotEqual, "pending")
			})
		})

		Convey("When the clip fails the integrity check", func() {
			body, ct := multipartBody("video/webm", "clip.webm", collaborator.MarkerIntegrityFail, "")
			var out types.ErrorResponse
			resp := postUpload(t, uploadURL, body, ct, &out)

			Convey("Then it is unprocessable with the reason and the issues", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusUnprocessableEntity)
				So(out.Reason, ShouldEqual, "integrity_failed")
				So(out.Message, ShouldEqual, "Video integrity check failed")
				So(out.Issues, ShouldResemble, []string{"frame rate inconsistent with motion blur"})
			})
		})

		Convey("When the collaborator errors", func() {
			body, ct := multipartBody("video/webm", "clip.webm", collaborator.MarkerError, "")
			var out types.ErrorResponse
			resp := postUpload(t, uploadURL, body, ct, &out)

			Convey("Then it is a server error with message and error", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusInternalServerError)
				So(out.Issues, ShouldBeEmpty)
				So(out.Message, ShouldEqual, "AI analysis failed")
				So(out.Error, ShouldNotBeEmpty)
				So(out.Reason, ShouldEqual, "analysis_error")
			})
		})

		Convey("When a text file is disguised as video.mp4", func() {
			body, ct := multipartBody("text/plain", "video.mp4", []byte("hello"), "")
			resp := postUpload(t, uploadURL, body, ct, nil)

			Convey("Then it is rejected and the assessment stays pending", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				var got types.Assessment
				doJSON(t, http.MethodGet, srv.URL+"/assessments/"+a.ID, nil, &got)
				So(got.Status, ShouldEqual, "pending")
			})
		})

		Convey("When the clip is over the limit", func() {
			body, ct := multipartBody("video/webm", "big.webm", bytes.Repeat([]byte("x"), uploadLimit*2), "")
			resp := postUpload(t, uploadURL, body, ct, nil)

			Convey("Then it is too large and the assessment stays pending", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusRequestEntityTooLarge)
				var got types.Assessment
				doJSON(t, http.MethodGet, srv.URL+"/assessments/"+a.ID, nil, &got)
				So(got.Status, ShouldEqual, "pending")
			})
		})

		Convey("When no video part is sent", func() {
			body, ct := multipartBody("", "", nil, "5")
			var out types.ErrorResponse
			resp := postUpload(t, uploadURL, body, ct, &out)

			Convey("Then it is a bad request", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusBadRequest)
				So(out.Message, ShouldContainSubstring, "no video file provided")
			})
		})

		Convey("When the assessment does not exist", func() {
			body, ct := multipartBody("video/webm", "clip.webm", []byte("clip"), "")
			resp := postUpload(t, srv.URL+"/assessments/missing/upload-video", body, ct, nil)

			Convey("Then it is not found", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})
	})
}

func TestIdentityRequired(t *testing.T) {
	Convey("Given an API that requires identity", t, func() {
		srv := newTestServer(t, api.WithRequireIdentity(true))

		Convey("When a mutating request has no user id", func() {
			resp, _ := http.Post(srv.URL+"/athletes", "application/json", strings.NewReader(`{"userId":"u"}`))
			resp.Body.Close()

			Convey("Then it is unauthorized", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusUnauthorized)
			})
		})

		Convey("When a read has no user id", func() {
			resp, _ := http.Get(srv.URL + "/test-types")
			resp.Body.Close()

			Convey("Then it is served", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
			})
		})
	})
}
