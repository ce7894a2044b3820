package upload_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/kaushal/internal/client"
	"github.com/okian/kaushal/internal/client/upload"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
)

type stubServer struct {
	mu      sync.Mutex
	parts   []string
	videoN  int
	release chan struct{}
}

func (s *stubServer) handler(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	for {
		p, err := mr.NextPart()
		if err != nil {
			break
		}
		n, _ := io.Copy(io.Discard, p)
		s.mu.Lock()
		s.parts = append(s.parts, p.FormName())
		if p.FormName() == "video" {
			s.videoN = int(n)
		}
		s.mu.Unlock()
	}

	if s.release != nil {
		select {
		case <-s.release:
		case <-r.Context().Done():
			return
		}
	}

	switch r.PathValue("id") {
	case "bad":
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(types.ErrorResponse{Code: "integrity_failed", Message: "Video integrity check failed", Reason: "integrity_failed"})
	case "async":
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(types.Assessment{ID: "async", Status: model.StatusProcessing})
	default:
		score := 81.5
		_ = json.NewEncoder(w).Encode(types.UploadResponse{
			Message:    "Video analyzed successfully",
			Assessment: types.Assessment{ID: r.PathValue("id"), Status: model.StatusCompleted, PerformanceScore: &score},
		})
	}
}

func newCoordinator(s *stubServer, opts ...upload.Option) (*upload.Coordinator, func()) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /assessments/{id}/upload-video", s.handler)
	srv := httptest.NewServer(mux)
	return upload.NewCoordinator(client.New(srv.URL), opts...), srv.Close
}

func clip(n int) upload.Clip {
	data := bytes.Repeat([]byte{0x1a}, n)
	return upload.Clip{Name: "take.webm", ContentType: "video/webm", Body: bytes.NewReader(data), Size: int64(n), DurationSeconds: 12}
}

func drain(ch <-chan int) []int {
	var out []int
	for p := range ch {
		out = append(out, p)
	}
	return out
}

func TestCoordinatorUpload(t *testing.T) {
	Convey("Given a coordinator against a stub server", t, func() {
		ctx := context.Background()

		Convey("A successful upload reports monotonic progress ending at 100", func() {
			s := &stubServer{}
			c, stop := newCoordinator(s)
			defer stop()

			tr := c.Upload(ctx, "a-1", clip(256*1024))
			progress := drain(tr.Progress)
			res := tr.Wait()

			So(res.Kind, ShouldEqual, upload.KindSuccess)
			So(res.Assessment.Status, ShouldEqual, model.StatusCompleted)
			So(*res.Assessment.PerformanceScore, ShouldEqual, 81.5)
			So(progress[0], ShouldEqual, 0)
			for i := 1; i < len(progress); i++ {
				So(progress[i], ShouldBeGreaterThanOrEqualTo, progress[i-1])
			}
			So(progress[len(progress)-1], ShouldBeLessThanOrEqualTo, 100)
			So(s.parts, ShouldResemble, []string{"duration", "video"})
			So(s.videoN, ShouldEqual, 256*1024)
			So(c.InFlight(), ShouldEqual, 0)
		})

		Convey("An async upload is accepted while processing", func() {
			c, stop := newCoordinator(&stubServer{}, upload.WithAsync(true))
			defer stop()

			res := c.Upload(ctx, "async", clip(1024)).Wait()
			So(res.Kind, ShouldEqual, upload.KindSuccess)
			So(res.Accepted, ShouldBeTrue)
			So(res.Assessment.Status, ShouldEqual, model.StatusProcessing)
		})

		Convey("A rejection surfaces the status and message", func() {
			c, stop := newCoordinator(&stubServer{})
			defer stop()

			res := c.Upload(ctx, "bad", clip(1024)).Wait()
			So(res.Kind, ShouldEqual, upload.KindServerError)
			So(res.StatusCode, ShouldEqual, http.StatusUnprocessableEntity)
			So(res.Code, ShouldEqual, "integrity_failed")
			So(res.Message, ShouldEqual, "Video integrity check failed")
		})

		Convey("Abort ends the transfer as aborted", func() {
			s := &stubServer{release: make(chan struct{})}
			c, stop := newCoordinator(s)
			defer stop()
			defer close(s.release)

			tr := c.Upload(ctx, "a-2", clip(1024))
			time.Sleep(50 * time.Millisecond)
			tr.Abort()
			res := tr.Wait()
			So(res.Kind, ShouldEqual, upload.KindAborted)
			So(res.Err, ShouldEqual, upload.ErrAborted)
		})

		Convey("A second upload for the same assessment supersedes the first", func() {
			s := &stubServer{release: make(chan struct{})}
			c, stop := newCoordinator(s)
			defer stop()

			first := c.Upload(ctx, "a-3", clip(1024))
			time.Sleep(50 * time.Millisecond)
			second := c.Upload(ctx, "a-3", clip(1024))

			So(first.Wait().Kind, ShouldEqual, upload.KindAborted)
			close(s.release)
			So(second.Wait().Kind, ShouldEqual, upload.KindSuccess)
		})

		Convey("An unreachable server is a network error", func() {
			c := upload.NewCoordinator(client.New("http://127.0.0.1:1"))
			res := c.Upload(ctx, "a-4", clip(16)).Wait()
			So(res.Kind, ShouldEqual, upload.KindNetworkError)
		})
	})
}
