// Package tui is the interactive recording flow: countdown, recording,
// review, upload with progress, and the analysis result.
package tui

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/okian/kaushal/internal/client/capture"
	"github.com/okian/kaushal/internal/client/poll"
	"github.com/okian/kaushal/internal/client/upload"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
)

const (
	spinnerInterval = 100 * time.Millisecond
	barWidth        = 30
)

type phase int

const (
	phaseAcquiring phase = iota
	phaseDeviceError
	phaseReady
	phaseCountdown
	phaseRecording
	phaseReview
	phaseUploading
	phaseAnalyzing
	phaseDone
	phaseFailed
)

// Creator makes a fresh assessment for the chosen test type.
type Creator func(ctx context.Context) (types.Assessment, error)

// Deps wires the flow to its collaborators.
type Deps struct {
	Controller *capture.Controller
	Uploader   *upload.Coordinator
	Poller     *poll.Poller
	// NewAssessment is called before the first upload and again after a
	// terminal failure.
	NewAssessment Creator
	TestName      string
	MaxDuration   time.Duration
}

type acquiredMsg struct{ err error }

type captureMsg struct{ ev capture.Event }

type captureEnd struct{}

type createdMsg struct {
	a   types.Assessment
	err error
}

type progressMsg int

type uploadedMsg upload.Result

type polledMsg struct {
	a   types.Assessment
	err error
}

type spinMsg struct{}

// Model is the bubbletea model of the recording flow.
type Model struct {
	ctx  context.Context
	deps Deps

	phase      phase
	remaining  int
	elapsed    time.Duration
	clip       *capture.Clip
	assessment *types.Assessment
	transfer   *upload.Transfer
	progress   int
	spin       int
	result     *types.Assessment
	err        error
	retryable  bool
	events     <-chan capture.Event
}

// NewModel creates the model. ctx bounds every call it makes.
func NewModel(ctx context.Context, deps Deps) *Model {
	return &Model{ctx: ctx, deps: deps}
}

func (m *Model) Init() tea.Cmd {
	return m.acquire()
}

func (m *Model) acquire() tea.Cmd {
	ctrl := m.deps.Controller
	ctx := m.ctx
	return func() tea.Msg {
		return acquiredMsg{err: ctrl.Acquire(ctx)}
	}
}

func waitEvent(events <-chan capture.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return captureEnd{}
		}
		return captureMsg{ev: ev}
	}
}

func waitProgress(t *upload.Transfer) tea.Cmd {
	return func() tea.Msg {
		if p, ok := <-t.Progress; ok {
			return progressMsg(p)
		}
		return uploadedMsg(t.Wait())
	}
}

func spin() tea.Cmd {
	return tea.Tick(spinnerInterval, func(time.Time) tea.Msg { return spinMsg{} })
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case acquiredMsg:
		if msg.err != nil {
			m.phase = phaseDeviceError
			m.err = msg.err
			return m, nil
		}
		m.phase = phaseReady
		m.err = nil
		return m, nil

	case captureMsg:
		return m.handleCapture(msg.ev)

	case captureEnd:
		return m, nil

	case createdMsg:
		if msg.err != nil {
			m.phase = phaseFailed
			m.err = msg.err
			m.retryable = true
			return m, nil
		}
		m.assessment = &msg.a
		return m, m.startUpload()

	case progressMsg:
		m.progress = int(msg)
		return m, waitProgress(m.transfer)

	case uploadedMsg:
		return m.handleUploaded(upload.Result(msg))

	case spinMsg:
		if m.phase != phaseAnalyzing && m.phase != phaseUploading {
			return m, nil
		}
		m.spin = (m.spin + 1) % len(spinnerFrames)
		return m, spin()

	case polledMsg:
		if msg.err != nil {
			m.phase = phaseFailed
			m.err = msg.err
			m.retryable = false
			return m, nil
		}
		return m.finish(msg.a)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.transfer != nil {
			m.transfer.Abort()
		}
		_ = m.deps.Controller.Close()
		return m, tea.Quit
	}

	switch m.phase {
	case phaseDeviceError:
		if msg.String() == "r" {
			m.phase = phaseAcquiring
			return m, m.acquire()
		}
	case phaseReady:
		if msg.String() == " " || msg.String() == "enter" {
			events, err := m.deps.Controller.Start(m.ctx)
			if err != nil {
				m.err = err
				return m, nil
			}
			m.events = events
			m.phase = phaseCountdown
			m.err = nil
			return m, waitEvent(events)
		}
	case phaseRecording:
		if msg.String() == " " || msg.String() == "s" {
			// The final event carries the clip.
			go func() { _, _ = m.deps.Controller.Stop() }()
		}
	case phaseReview:
		switch msg.String() {
		case "enter", "u":
			return m, m.upload()
		case "r":
			return m, m.retake()
		}
	case phaseFailed:
		switch msg.String() {
		case "u":
			if m.retryable && m.clip != nil {
				return m, m.upload()
			}
		case "r":
			return m, m.retake()
		}
	}
	return m, nil
}

func (m *Model) handleCapture(ev capture.Event) (tea.Model, tea.Cmd) {
	switch {
	case ev.Err != nil:
		m.phase = phaseReady
		m.err = ev.Err
		return m, waitEvent(m.events)
	case ev.Clip != nil:
		m.clip = ev.Clip
		m.elapsed = ev.Elapsed
		if m.deps.MaxDuration > 0 && ev.Elapsed >= m.deps.MaxDuration {
			// Auto stop at the cap goes straight to upload.
			return m, tea.Batch(waitEvent(m.events), m.upload())
		}
		m.phase = phaseReview
		return m, waitEvent(m.events)
	case ev.State == capture.StateCountdown:
		m.phase = phaseCountdown
		m.remaining = ev.Remaining
	case ev.State == capture.StateRecording:
		m.phase = phaseRecording
		m.elapsed = ev.Elapsed
	}
	return m, waitEvent(m.events)
}

func (m *Model) retake() tea.Cmd {
	if m.deps.Controller.State() == capture.StateStopped {
		_ = m.deps.Controller.Retake()
	}
	m.clip = nil
	m.progress = 0
	m.err = nil
	if m.assessment != nil && m.result != nil && m.result.Status.IsTerminal() {
		m.assessment = nil
	}
	m.result = nil
	m.phase = phaseReady
	return nil
}

// upload creates the assessment first when there is none.
func (m *Model) upload() tea.Cmd {
	m.phase = phaseUploading
	m.progress = 0
	m.err = nil
	if m.assessment == nil {
		create := m.deps.NewAssessment
		ctx := m.ctx
		return tea.Batch(spin(), func() tea.Msg {
			a, err := create(ctx)
			return createdMsg{a: a, err: err}
		})
	}
	return tea.Batch(spin(), m.startUpload())
}

func (m *Model) startUpload() tea.Cmd {
	clip := upload.Clip{
		Name:            m.clip.Name,
		ContentType:     m.clip.ContentType,
		Body:            bytes.NewReader(m.clip.Data),
		Size:            int64(len(m.clip.Data)),
		DurationSeconds: m.clip.Seconds(),
	}
	m.transfer = m.deps.Uploader.Upload(m.ctx, m.assessment.ID, clip)
	return waitProgress(m.transfer)
}

func (m *Model) handleUploaded(res upload.Result) (tea.Model, tea.Cmd) {
	m.transfer = nil
	switch res.Kind {
	case upload.KindSuccess:
		m.progress = 100
		if res.Assessment.Status == model.StatusProcessing {
			m.phase = phaseAnalyzing
			return m, tea.Batch(spin(), m.watch(res.Assessment.ID))
		}
		return m.finish(res.Assessment)
	case upload.KindAborted:
		m.phase = phaseReview
		return m, nil
	case upload.KindNetworkError:
		m.phase = phaseFailed
		m.err = res.Err
		m.retryable = true
		return m, nil
	}

	// The server decided: the assessment is terminal or refused the clip.
	m.phase = phaseFailed
	m.retryable = false
	m.err = fmt.Errorf("%s", firstNonEmpty(res.Message, res.Code, fmt.Sprintf("status %d", res.StatusCode)))
	if m.assessment != nil {
		failed := *m.assessment
		failed.Status = model.StatusFailed
		m.result = &failed
	}
	return m, nil
}

func (m *Model) watch(id string) tea.Cmd {
	p := m.deps.Poller
	ctx := m.ctx
	return func() tea.Msg {
		a, err := p.Watch(ctx, id, nil)
		return polledMsg{a: a, err: err}
	}
}

func (m *Model) finish(a types.Assessment) (tea.Model, tea.Cmd) {
	m.result = &a
	if a.Status == model.StatusCompleted {
		m.phase = phaseDone
		return m, nil
	}
	m.phase = phaseFailed
	m.retryable = false
	m.err = fmt.Errorf("analysis failed: %s", firstNonEmpty(a.FailureReason, "unknown reason"))
	return m, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.deps.TestName))
	b.WriteString("\n\n")

	switch m.phase {
	case phaseAcquiring:
		b.WriteString(hintStyle.Render("Opening camera and microphone..."))
	case phaseDeviceError:
		b.WriteString(errorStyle.Render("Camera unavailable: " + m.err.Error()))
		b.WriteString("\n\n" + hintStyle.Render("r retry  q quit"))
	case phaseReady:
		if m.err != nil {
			b.WriteString(errorStyle.Render(m.err.Error()) + "\n\n")
		}
		b.WriteString(textStyle.Render("Ready to record."))
		b.WriteString("\n\n" + hintStyle.Render("space start  q quit"))
	case phaseCountdown:
		b.WriteString(countStyle.Render(fmt.Sprintf("%d", m.remaining)))
	case phaseRecording:
		b.WriteString(recordStyle.Render("● REC "))
		b.WriteString(textStyle.Render(fmt.Sprintf("%02ds", int(m.elapsed.Seconds()))))
		b.WriteString("\n" + Bar(int(m.elapsed), int(m.deps.MaxDuration), barWidth))
		b.WriteString("\n\n" + hintStyle.Render("space stop"))
	case phaseReview:
		b.WriteString(textStyle.Render(fmt.Sprintf("Recorded %ds, %d KB.", m.clip.Seconds(), len(m.clip.Data)/1024)))
		b.WriteString("\n\n" + hintStyle.Render("enter upload  r retake  q quit"))
	case phaseUploading:
		b.WriteString(textStyle.Render("Uploading " + spinnerFrames[m.spin]))
		b.WriteString("\n" + Bar(m.progress, 100, barWidth))
	case phaseAnalyzing:
		b.WriteString(textStyle.Render(spinnerFrames[m.spin] + " Analyzing your performance..."))
	case phaseDone:
		b.WriteString(renderResult(m.result))
		b.WriteString("\n\n" + hintStyle.Render("q quit"))
	case phaseFailed:
		b.WriteString(errorStyle.Render(m.err.Error()))
		hint := "r record again  q quit"
		if m.retryable && m.clip != nil {
			hint = "u retry upload  " + hint
		}
		b.WriteString("\n\n" + hintStyle.Render(hint))
	}
	return frameStyle.Render(b.String()) + "\n"
}

func renderResult(a *types.Assessment) string {
	var b strings.Builder
	b.WriteString(successStyle.Render("Analysis complete"))
	if a.PerformanceScore != nil {
		b.WriteString(textStyle.Render(fmt.Sprintf("  score %.1f / 100", *a.PerformanceScore)))
	}
	if a.Feedback != "" {
		b.WriteString("\n\n" + textStyle.Render(a.Feedback))
	}
	for _, mt := range a.Metrics {
		b.WriteString("\n" + hintStyle.Render(fmt.Sprintf("  %-20s %8.2f %s", mt.Name, mt.Value, mt.Unit)))
	}
	return b.String()
}

// Run drives the flow until the user quits.
func Run(ctx context.Context, deps Deps) error {
	p := tea.NewProgram(NewModel(ctx, deps), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
