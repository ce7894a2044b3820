// Package upload delivers one recorded clip to the ingestion endpoint with
// observable progress. At most one transfer runs per assessment.
package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"sync"

	"github.com/okian/kaushal/internal/client"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/logger"
)

// Field names of the multipart body.
const (
	FieldVideo    = "video"
	FieldDuration = "duration"
)

// ErrAborted is the cause of an aborted transfer.
var ErrAborted = errors.New("upload aborted")

// Kind classifies the final outcome of a transfer.
type Kind string

const (
	KindSuccess      Kind = "success"
	KindNetworkError Kind = "network_error"
	KindServerError  Kind = "server_error"
	KindAborted      Kind = "aborted"
)

// Clip is the recorded media to send.
type Clip struct {
	Name        string
	ContentType string
	Body        io.Reader
	// Size drives the progress percentage; 0 reports only 0 and 100.
	Size int64
	// DurationSeconds is sent when positive.
	DurationSeconds int
}

// Result is the final outcome of one transfer.
type Result struct {
	Kind       Kind
	StatusCode int
	Code       string
	Message    string
	// Assessment is set on success. With async uploads it is still processing.
	Assessment types.Assessment
	Analysis   json.RawMessage
	Accepted   bool
	Err        error
}

// Transfer is one in-flight upload.
type Transfer struct {
	// Progress carries percentages 0..100, non-decreasing, closed when the
	// transfer ends.
	Progress <-chan int

	cancel context.CancelCauseFunc
	done   chan struct{}
	result Result
}

// Abort stops the transfer; Wait then reports KindAborted.
func (t *Transfer) Abort() { t.cancel(ErrAborted) }

// Wait blocks until the transfer ends.
func (t *Transfer) Wait() Result {
	<-t.done
	return t.result
}

// Done is closed when the transfer ends.
func (t *Transfer) Done() <-chan struct{} { return t.done }

// Coordinator sends clips through a client.
type Coordinator struct {
	api   *client.Client
	async bool
	log   logger.Logger

	mu     sync.Mutex
	active map[string]*Transfer
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithAsync asks the server to answer 202 before analysis finishes.
func WithAsync(async bool) Option {
	return func(c *Coordinator) { c.async = async }
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.log = l
		}
	}
}

// NewCoordinator creates a Coordinator over api.
func NewCoordinator(api *client.Client, opts ...Option) *Coordinator {
	c := &Coordinator{
		api:    api,
		log:    logger.Named("upload"),
		active: make(map[string]*Transfer),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Upload starts sending clip for assessmentID. A transfer already running
// for the same assessment is aborted and awaited first.
func (c *Coordinator) Upload(ctx context.Context, assessmentID string, clip Clip) *Transfer {
	c.mu.Lock()
	prior := c.active[assessmentID]
	tctx, cancel := context.WithCancelCause(ctx)
	progress := make(chan int, 8)
	t := &Transfer{Progress: progress, cancel: cancel, done: make(chan struct{})}
	c.active[assessmentID] = t
	c.mu.Unlock()

	if prior != nil {
		c.log.Info(ctx, "superseding in-flight upload", logger.String("assessment_id", assessmentID))
		prior.Abort()
		<-prior.done
	}

	rep := &reporter{ch: progress}
	go func() {
		defer close(t.done)
		defer rep.close()
		defer cancel(nil)
		t.result = c.send(tctx, assessmentID, clip, rep)

		c.mu.Lock()
		if c.active[assessmentID] == t {
			delete(c.active, assessmentID)
		}
		c.mu.Unlock()
	}()
	return t
}

// InFlight reports how many transfers are running.
func (c *Coordinator) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}

func (c *Coordinator) send(ctx context.Context, assessmentID string, clip Clip, rep *reporter) Result {
	log := c.log.With(logger.String("assessment_id", assessmentID))
	rep.report(0)

	pr, pw := io.Pipe()
	defer pr.Close()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeBody(mw, clip, &countingReader{r: clip.Body, total: clip.Size, rep: rep}))
	}()

	url := c.api.UploadURL(assessmentID)
	if c.async {
		url += "?async=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		_ = pr.CloseWithError(err)
		return Result{Kind: KindNetworkError, Err: err}
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	c.api.Authorize(req)

	resp, err := c.api.HTTP().Do(req)
	if err != nil {
		_ = pr.CloseWithError(err)
		if cause := context.Cause(ctx); cause != nil {
			log.Info(ctx, "upload aborted", logger.Error(cause))
			return Result{Kind: KindAborted, Err: cause}
		}
		log.Warn(ctx, "upload transport failed", logger.Error(err))
		return Result{Kind: KindNetworkError, Err: fmt.Errorf("%w: %w", client.ErrTransport, err)}
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var body types.UploadResponse
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return Result{Kind: KindNetworkError, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode upload response: %w", err)}
		}
		rep.report(100)
		return Result{Kind: KindSuccess, StatusCode: resp.StatusCode, Message: body.Message,
			Assessment: body.Assessment, Analysis: body.AnalysisResult}
	case http.StatusAccepted:
		var a types.Assessment
		if err := json.NewDecoder(resp.Body).Decode(&a); err != nil {
			return Result{Kind: KindNetworkError, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode upload response: %w", err)}
		}
		rep.report(100)
		return Result{Kind: KindSuccess, StatusCode: resp.StatusCode, Assessment: a, Accepted: true}
	}

	apiErr := client.DecodeError(resp)
	var ae *client.APIError
	errors.As(apiErr, &ae)
	log.Warn(ctx, "upload rejected", logger.Int("status", resp.StatusCode), logger.String("code", ae.Code))
	return Result{Kind: KindServerError, StatusCode: resp.StatusCode, Code: ae.Code, Message: ae.Message, Err: apiErr}
}

// writeBody writes the duration part before the video part.
func writeBody(mw *multipart.Writer, clip Clip, body io.Reader) error {
	if clip.DurationSeconds > 0 {
		if err := mw.WriteField(FieldDuration, strconv.Itoa(clip.DurationSeconds)); err != nil {
			return err
		}
	}
	name := clip.Name
	if name == "" {
		name = "clip.webm"
	}
	ct := clip.ContentType
	if ct == "" {
		ct = "video/webm"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldVideo, name))
	h.Set("Content-Type", ct)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, body); err != nil {
		return err
	}
	return mw.Close()
}

// reporter emits increasing percentages and drops updates nobody reads.
type reporter struct {
	mu     sync.Mutex
	ch     chan int
	last   int
	sent   bool
	closed bool
}

func (r *reporter) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	close(r.ch)
}

func (r *reporter) report(pct int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if pct > 100 {
		pct = 100
	}
	if r.sent && pct <= r.last {
		return
	}
	select {
	case r.ch <- pct:
		r.last, r.sent = pct, true
	default:
	}
}

type countingReader struct {
	r     io.Reader
	total int64
	n     int64
	rep   *reporter
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.total > 0 {
		// 99 until the server answers.
		pct := int(c.n * 99 / c.total)
		c.rep.report(pct)
	}
	return n, err
}
