package syndicate

import (
	"context"
	"fmt"
	"time"

	"github.com/blacktop/syndicate/internal/logutil"
	"github.com/google/uuid"
)

// JobState tracks a publish job through the asynchronous media pipeline.
type JobState string

const (
	JobCreated    JobState = "created"
	JobRegistered JobState = "registered"
	JobUploaded   JobState = "uploaded"
	JobProcessing JobState = "processing"
	JobReady      JobState = "ready"
	JobPublished  JobState = "published"
	JobFailed     JobState = "failed"
)

// PollPhase is the platform-reported status of a registered container.
type PollPhase int

const (
	PollProcessing PollPhase = iota
	PollReady
	PollFailed
)

// PollState carries the container status plus any platform-provided
// diagnostic text.
type PollState struct {
	Phase  PollPhase
	Detail string
}

// PublishJob is the in-memory record of one pipeline run. It lives only
// for the duration of a single Post call and is never persisted.
type PublishJob struct {
	ID        string
	State     JobState
	CreatedAt time.Time
	Attempts  int
	LastError error
}

const (
	defaultPollInterval = 3 * time.Second
	defaultMaxPolls     = 20
)

// Pipeline drives the register -> upload -> poll -> publish sequence
// required by platforms that process uploaded media server-side before it
// becomes publishable. Steps run strictly in order; Upload and Poll may be
// nil when the platform registers and uploads in one call or reports
// readiness synchronously.
type Pipeline struct {
	Provider string

	// Register creates the remote container and returns its opaque id,
	// the sole handle for every subsequent step.
	Register func(ctx context.Context) (string, error)
	// Upload pushes the binary (or points the platform at a URL).
	Upload func(ctx context.Context, containerID string) error
	// Poll reports the container's processing status.
	Poll func(ctx context.Context, containerID string) (PollState, error)
	// Publish makes the processed container live and returns the post id.
	Publish func(ctx context.Context, containerID string) (string, error)

	PollInterval time.Duration
	MaxPolls     int

	// Sleep is replaceable in tests to skip real delays.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Run executes the pipeline to a terminal state and returns the published
// post id. An explicit processing failure reported by the platform stops
// polling immediately; exhausting the attempt bound is reported as a
// TimeoutError instead.
func (p Pipeline) Run(ctx context.Context) (string, error) {
	if p.Register == nil || p.Publish == nil {
		return "", fmt.Errorf("%s pipeline misconfigured: register and publish steps are required", p.Provider)
	}

	interval := p.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxPolls := p.MaxPolls
	if maxPolls <= 0 {
		maxPolls = defaultMaxPolls
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	job := &PublishJob{
		ID:        uuid.NewString(),
		State:     JobCreated,
		CreatedAt: time.Now(),
	}
	logutil.Debugf("%s publish job %s created", p.Provider, job.ID)

	containerID, err := p.Register(ctx)
	if err != nil {
		return "", p.fail(job, fmt.Errorf("register container: %w", err))
	}
	job.State = JobRegistered
	logutil.Debugf("%s job %s registered container %s", p.Provider, job.ID, containerID)

	if p.Upload != nil {
		if err := p.Upload(ctx, containerID); err != nil {
			return "", p.fail(job, fmt.Errorf("upload media: %w", err))
		}
	}
	job.State = JobUploaded

	if p.Poll != nil {
		job.State = JobProcessing
		ready := false
		for job.Attempts < maxPolls {
			state, err := p.Poll(ctx, containerID)
			job.Attempts++
			if err != nil {
				return "", p.fail(job, fmt.Errorf("poll status: %w", err))
			}
			logutil.Debugf("%s job %s poll %d/%d phase=%d", p.Provider, job.ID, job.Attempts, maxPolls, state.Phase)

			if state.Phase == PollReady {
				ready = true
				break
			}
			if state.Phase == PollFailed {
				return "", p.fail(job, ProcessingError{
					Provider:  p.Provider,
					Container: containerID,
					Reason:    state.Detail,
				})
			}
			if job.Attempts < maxPolls {
				if err := sleep(ctx, interval); err != nil {
					return "", p.fail(job, err)
				}
			}
		}
		if !ready {
			return "", p.fail(job, TimeoutError{
				Provider:  p.Provider,
				Container: containerID,
				Attempts:  job.Attempts,
			})
		}
	}
	job.State = JobReady

	postID, err := p.Publish(ctx, containerID)
	if err != nil {
		return "", p.fail(job, fmt.Errorf("publish container: %w", err))
	}
	job.State = JobPublished
	logutil.Debugf("%s job %s published post %s", p.Provider, job.ID, postID)

	return postID, nil
}

func (p Pipeline) fail(job *PublishJob, err error) error {
	job.State = JobFailed
	job.LastError = err
	logutil.Debugf("%s job %s failed: %v", p.Provider, job.ID, err)
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
