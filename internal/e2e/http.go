package e2e

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/kaushal/internal/client/poll"
	"github.com/okian/kaushal/internal/client/upload"
	"github.com/okian/kaushal/internal/domain/model"
	"github.com/okian/kaushal/internal/domain/types"
	"github.com/okian/kaushal/pkg/logger"
)

// submitCases uploads every case concurrently and polls each to a terminal
// status.
func submitCases(ctx context.Context, config *Config, up *upload.Coordinator, poller *poll.Poller, cases []Case, stats *Stats) []Outcome {
	logger.Get().Info(ctx, "uploading clips", logger.Int("cases", len(cases)), logger.Int("workers", config.Workers))

	var (
		submitted int64
		accepted  int64
		rejected  int64
		failed    int64
		finished  int64
	)

	var lastReport atomic.Int64
	outcomes := make([]Outcome, len(cases))
	caseChan := make(chan int, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for i := 0; i < config.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			for idx := range caseChan {
				if ctx.Err() != nil {
					continue
				}
				out := submitSingleCase(ctx, up, poller, cases[idx])
				outcomes[idx] = out

				atomic.AddInt64(&submitted, 1)
				switch {
				case out.UploadStatus >= 200 && out.UploadStatus < 300:
					atomic.AddInt64(&accepted, 1)
				case out.UploadStatus >= 400:
					atomic.AddInt64(&rejected, 1)
				default:
					atomic.AddInt64(&failed, 1)
				}
				done := atomic.AddInt64(&finished, 1)

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					if config.Verbose {
						logger.Get().Info(ctx, "progress", logger.Int64("finished", done), logger.Int("total", len(cases)),
							logger.Int64("accepted", atomic.LoadInt64(&accepted)), logger.Int64("rejected", atomic.LoadInt64(&rejected)))
					} else {
						fmt.Printf("\r📤 Finished: %d/%d (accepted: %d, rejected: %d, failed: %d)",
							done, len(cases), atomic.LoadInt64(&accepted), atomic.LoadInt64(&rejected), atomic.LoadInt64(&failed))
					}
				}
			}
		}()
	}

	go func() {
		defer close(caseChan)
		for i := range cases {
			select {
			case <-ctx.Done():
				return
			case caseChan <- i:
			}
		}
	}()

	wg.Wait()
	if !config.Verbose {
		fmt.Println()
	}

	stats.UploadsSubmitted += int(atomic.LoadInt64(&submitted))
	stats.UploadsAccepted += int(atomic.LoadInt64(&accepted))
	stats.UploadsRejected += int(atomic.LoadInt64(&rejected))
	stats.UploadsFailed += int(atomic.LoadInt64(&failed))

	for _, o := range outcomes {
		switch o.Final.Status {
		case model.StatusCompleted:
			stats.Completed++
		case model.StatusFailed:
			stats.Failed++
		}
	}

	logger.Get().Info(ctx, "upload phase completed",
		logger.Int("accepted", stats.UploadsAccepted),
		logger.Int("rejected", stats.UploadsRejected),
		logger.Int("failed", stats.UploadsFailed))
	return outcomes
}

// submitSingleCase uploads asynchronously, then polls so every status the
// client can observe is recorded.
func submitSingleCase(ctx context.Context, up *upload.Coordinator, poller *poll.Poller, c Case) Outcome {
	start := time.Now()
	out := Outcome{Case: c}

	res := up.Upload(ctx, c.AssessmentID, upload.Clip{
		Name:            string(c.Scenario) + ".webm",
		ContentType:     "video/webm",
		Body:            bytes.NewReader(c.Clip),
		Size:            int64(len(c.Clip)),
		DurationSeconds: 10,
	}).Wait()
	out.UploadStatus = res.StatusCode
	if res.Kind != upload.KindSuccess {
		out.Violations = append(out.Violations, fmt.Sprintf("upload %s: %v", res.Kind, res.Err))
		out.Took = time.Since(start)
		return out
	}
	out.Observed = append(out.Observed, res.Assessment.Status)

	final, err := poller.Watch(ctx, c.AssessmentID, func(a types.Assessment) {
		out.Observed = append(out.Observed, a.Status)
	})
	out.Final = final
	if err != nil {
		if errors.Is(err, poll.ErrStatusRegressed) {
			out.Violations = append(out.Violations, "status regressed: "+err.Error())
		} else {
			out.Violations = append(out.Violations, "poll: "+err.Error())
		}
	}
	out.Took = time.Since(start)
	return out
}
