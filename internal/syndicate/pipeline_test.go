package syndicate

import (
	"context"
	"errors"
	"testing"
	"time"
)

func noSleep(ctx context.Context, d time.Duration) error { return nil }

func TestPipeline_PollsUntilReadyThenPublishes(t *testing.T) {
	phases := []PollPhase{PollProcessing, PollProcessing, PollReady}
	polls := 0
	published := false

	p := Pipeline{
		Provider: "test",
		Register: func(ctx context.Context) (string, error) { return "container-1", nil },
		Upload: func(ctx context.Context, containerID string) error {
			if containerID != "container-1" {
				t.Fatalf("upload got container %q", containerID)
			}
			return nil
		},
		Poll: func(ctx context.Context, containerID string) (PollState, error) {
			phase := phases[polls]
			polls++
			return PollState{Phase: phase}, nil
		},
		Publish: func(ctx context.Context, containerID string) (string, error) {
			published = true
			return "post-99", nil
		},
		MaxPolls: 10,
		Sleep:    noSleep,
	}

	postID, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postID != "post-99" {
		t.Fatalf("expected post-99, got %q", postID)
	}
	if polls != 3 {
		t.Fatalf("expected exactly 3 polls, got %d", polls)
	}
	if !published {
		t.Fatal("expected publish to run after readiness")
	}
}

func TestPipeline_NeverReadyIsTimeout(t *testing.T) {
	polls := 0
	p := Pipeline{
		Provider: "test",
		Register: func(ctx context.Context) (string, error) { return "c", nil },
		Poll: func(ctx context.Context, containerID string) (PollState, error) {
			polls++
			return PollState{Phase: PollProcessing}, nil
		},
		Publish: func(ctx context.Context, containerID string) (string, error) {
			t.Fatal("publish must not run on timeout")
			return "", nil
		},
		MaxPolls: 4,
		Sleep:    noSleep,
	}

	_, err := p.Run(context.Background())
	var te TimeoutError
	if !errors.As(err, &te) {
		t.Fatalf("expected TimeoutError, got %v", err)
	}
	if te.Attempts != 4 || polls != 4 {
		t.Fatalf("expected 4 attempts, got attempts=%d polls=%d", te.Attempts, polls)
	}
	var pe ProcessingError
	if errors.As(err, &pe) {
		t.Fatal("timeout must not be a processing failure")
	}
}

func TestPipeline_ExplicitFailureStopsPollingImmediately(t *testing.T) {
	phases := []PollPhase{PollProcessing, PollFailed, PollReady}
	polls := 0
	p := Pipeline{
		Provider: "test",
		Register: func(ctx context.Context) (string, error) { return "c", nil },
		Poll: func(ctx context.Context, containerID string) (PollState, error) {
			phase := phases[polls]
			polls++
			return PollState{Phase: phase, Detail: "codec unsupported"}, nil
		},
		Publish: func(ctx context.Context, containerID string) (string, error) {
			t.Fatal("publish must not run after a processing failure")
			return "", nil
		},
		MaxPolls: 10,
		Sleep:    noSleep,
	}

	_, err := p.Run(context.Background())
	var pe ProcessingError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProcessingError, got %v", err)
	}
	if pe.Reason != "codec unsupported" {
		t.Fatalf("expected platform detail in error, got %q", pe.Reason)
	}
	if polls != 2 {
		t.Fatalf("expected polling to stop at the failure, got %d polls", polls)
	}
}

func TestPipeline_RegisterFailureSkipsLaterSteps(t *testing.T) {
	wantErr := errors.New("quota exceeded")
	p := Pipeline{
		Provider: "test",
		Register: func(ctx context.Context) (string, error) { return "", wantErr },
		Upload: func(ctx context.Context, containerID string) error {
			t.Fatal("upload must not run when registration fails")
			return nil
		},
		Publish: func(ctx context.Context, containerID string) (string, error) {
			t.Fatal("publish must not run when registration fails")
			return "", nil
		},
		Sleep: noSleep,
	}

	_, err := p.Run(context.Background())
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected register failure to surface, got %v", err)
	}
}

func TestPipeline_OptionalStepsSkipped(t *testing.T) {
	p := Pipeline{
		Provider: "test",
		Register: func(ctx context.Context) (string, error) { return "c", nil },
		Publish:  func(ctx context.Context, containerID string) (string, error) { return "p1", nil },
		Sleep:    noSleep,
	}

	postID, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if postID != "p1" {
		t.Fatalf("expected p1, got %q", postID)
	}
}

func TestPipeline_SleepHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := Pipeline{
		Provider: "test",
		Register: func(ctx context.Context) (string, error) { return "c", nil },
		Poll: func(ctx context.Context, containerID string) (PollState, error) {
			return PollState{Phase: PollProcessing}, nil
		},
		Publish:      func(ctx context.Context, containerID string) (string, error) { return "", nil },
		PollInterval: time.Hour,
		MaxPolls:     5,
	}

	_, err := p.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context cancellation, got %v", err)
	}
}
