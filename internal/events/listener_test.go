package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZulAmi/proofwork-reputation/internal/domain"
)

func validEvent(subjectID string) domain.ReviewEvent {
	return domain.ReviewEvent{
		ReviewerID: "0xclient",
		SubjectID:  subjectID,
		Rating:     4,
		Comment:    "solid delivery",
		Timestamp:  time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestListener_DispatchesToHandler(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})

	l := NewListener(8, func(_ context.Context, event domain.ReviewEvent) {
		mu.Lock()
		seen = append(seen, event.SubjectID)
		mu.Unlock()
		close(done)
	})
	l.Start(context.Background())
	defer l.Stop()

	require.NoError(t, l.Submit(validEvent("0xfreelancer")))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"0xfreelancer"}, seen)
}

func TestListener_RejectsInvalidEvents(t *testing.T) {
	l := NewListener(8, func(context.Context, domain.ReviewEvent) {})

	err := l.Submit(domain.ReviewEvent{ReviewerID: "0xclient", Rating: 4})
	assert.ErrorIs(t, err, domain.ErrMissingSubject)

	bad := validEvent("0xfreelancer")
	bad.Rating = 0
	assert.ErrorIs(t, l.Submit(bad), domain.ErrRatingOutOfRange)
}

func TestListener_DropsWhenQueueFull(t *testing.T) {
	// Not started, so nothing drains the queue.
	l := NewListener(2, func(context.Context, domain.ReviewEvent) {})

	require.NoError(t, l.Submit(validEvent("0xa")))
	require.NoError(t, l.Submit(validEvent("0xb")))
	assert.ErrorIs(t, l.Submit(validEvent("0xc")), ErrQueueFull)
}

func TestListener_SlowHandlerDoesNotBlockOthers(t *testing.T) {
	release := make(chan struct{})
	fastDone := make(chan string, 1)

	l := NewListener(8, func(_ context.Context, event domain.ReviewEvent) {
		if event.SubjectID == "0xslow" {
			<-release
			return
		}
		fastDone <- event.SubjectID
	})
	l.Start(context.Background())

	require.NoError(t, l.Submit(validEvent("0xslow")))
	require.NoError(t, l.Submit(validEvent("0xfast")))

	select {
	case subject := <-fastDone:
		assert.Equal(t, "0xfast", subject)
	case <-time.After(time.Second):
		t.Fatal("fast event blocked behind slow one")
	}

	close(release)
	l.Stop()
}

func TestListener_StopWaitsForInflightHandlers(t *testing.T) {
	var mu sync.Mutex
	finished := false

	l := NewListener(8, func(context.Context, domain.ReviewEvent) {
		time.Sleep(50 * time.Millisecond)
		mu.Lock()
		finished = true
		mu.Unlock()
	})
	l.Start(context.Background())

	require.NoError(t, l.Submit(validEvent("0xfreelancer")))
	time.Sleep(10 * time.Millisecond) // let dispatch pick it up
	l.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, finished)
}
