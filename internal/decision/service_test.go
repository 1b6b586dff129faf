package decision

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/stdhuman/stdhuman/internal/common/errors"
	"github.com/stdhuman/stdhuman/internal/common/logger"
	"github.com/stdhuman/stdhuman/internal/events/bus"
)

// fakeNotifier records delivered prompts and can be told to fail.
type fakeNotifier struct {
	mu        sync.Mutex
	delivered []string
	failWith  error
}

func (f *fakeNotifier) DeliverPrompt(ctx context.Context, question string, options []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.delivered = append(f.delivered, question)
	return nil
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func newTestService(t *testing.T) (*Service, *fakeNotifier) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	notifier := &fakeNotifier{}
	svc := NewService(NewSlot(), notifier, bus.NewMemoryEventBus(log), time.Hour, log)
	return svc, notifier
}

func TestAskSyncAnswered(t *testing.T) {
	svc, notifier := newTestService(t)

	go func() {
		// Wait for the prompt to go out, then reply like the operator would.
		for notifier.count() == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		svc.ResolveReply(context.Background(), "Yes")
	}()

	answer, err := svc.AskSync(context.Background(), "Proceed?", []string{"Yes", "No"}, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "Yes", answer)

	// Slot is cleared once the synchronous waiter consumed the answer.
	assert.False(t, svc.Pending())
}

func TestAskSyncTimeout(t *testing.T) {
	svc, _ := newTestService(t)

	start := time.Now()
	_, err := svc.AskSync(context.Background(), "Proceed?", nil, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err), "expected timeout, got %v", err)
	assert.Less(t, elapsed, 500*time.Millisecond)

	// Timeout clears state: a new decision can be created immediately.
	assert.False(t, svc.Pending())
	_, err = svc.AskAsync(context.Background(), "Next?", nil)
	assert.NoError(t, err)
}

func TestAskSyncPreemptsPendingDecision(t *testing.T) {
	svc, notifier := newTestService(t)

	id1, err := svc.AskAsync(context.Background(), "First", nil)
	require.NoError(t, err)

	go func() {
		for notifier.count() < 2 {
			time.Sleep(5 * time.Millisecond)
		}
		svc.ResolveReply(context.Background(), "go ahead")
	}()

	answer, err := svc.AskSync(context.Background(), "Second", nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "go ahead", answer)

	// The preempted request id must not resolve to the new answer.
	_, status := svc.Poll(id1)
	assert.Equal(t, StatusUnknown, status)
}

func TestAskSyncPreemptsLiveSyncWaiter(t *testing.T) {
	svc, notifier := newTestService(t)

	firstDone := make(chan error, 1)
	go func() {
		_, err := svc.AskSync(context.Background(), "First", nil, 5*time.Second)
		firstDone <- err
	}()
	for notifier.count() == 0 {
		time.Sleep(5 * time.Millisecond)
	}

	go func() {
		// Reply only after the preempted waiter has woken and finished its
		// cleanup and the second prompt is out, so a cancel scoped to the
		// wrong decision would have already torn down the successor.
		err := <-firstDone
		firstDone <- err
		for notifier.count() < 2 {
			time.Sleep(5 * time.Millisecond)
		}
		svc.ResolveReply(context.Background(), "go ahead")
	}()

	answer, err := svc.AskSync(context.Background(), "Second", nil, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "go ahead", answer)

	err = <-firstDone
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err), "preempted waiter should report conflict, got %v", err)
}

func TestLateReplyCannotLandOnSuccessor(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	// The operator's reply is mapped against the first decision's options.
	_, err := svc.AskAsync(ctx, "Deploy?", []string{"Yes", "No"})
	require.NoError(t, err)
	idA, optsA, ok := svc.slot.Snapshot()
	require.True(t, ok)

	// A preempting ask replaces the decision before the reply lands.
	_, preempted := svc.slot.Preempt()
	require.True(t, preempted)
	idB, err := svc.slot.Create("Rollback?", []string{"Now", "Later"})
	require.NoError(t, err)

	mapped := MapReply("1", optsA)
	assert.Equal(t, "Yes", mapped)
	assert.False(t, svc.slot.Resolve(idA, mapped), "reply to a superseded decision must be refused")

	// The successor is untouched and still answerable on its own terms.
	_, status := svc.Poll(idB)
	assert.Equal(t, StatusPending, status)
	assert.True(t, svc.ResolveReply(ctx, "2"))
	answer, _ := svc.Poll(idB)
	assert.Equal(t, "Later", answer)
}

func TestAskSyncDeliveryFailure(t *testing.T) {
	svc, notifier := newTestService(t)
	notifier.failWith = apperrors.DeliveryFailed("telegram send failed", nil)

	_, err := svc.AskSync(context.Background(), "Proceed?", nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, 502, apperrors.GetHTTPStatus(err))

	// The undeliverable decision is rolled back, not left dangling.
	assert.False(t, svc.Pending())
}

func TestAskSyncMissingDestinationPassthrough(t *testing.T) {
	svc, notifier := newTestService(t)
	notifier.failWith = apperrors.BadRequest("operator not paired; send /start <code>")

	_, err := svc.AskSync(context.Background(), "Proceed?", nil, time.Second)
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.GetHTTPStatus(err))
	assert.False(t, svc.Pending())
}

func TestAskAsyncPollLifecycle(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.AskAsync(ctx, "Ping", nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	_, status := svc.Poll(id)
	assert.Equal(t, StatusPending, status)

	require.True(t, svc.ResolveReply(ctx, "pong"))

	answer, status := svc.Poll(id)
	assert.Equal(t, StatusAnswered, status)
	assert.Equal(t, "pong", answer)

	// Repeated polls return the same text until a new decision supersedes it.
	answer, status = svc.Poll(id)
	assert.Equal(t, StatusAnswered, status)
	assert.Equal(t, "pong", answer)

	_, status = svc.Poll("never-issued")
	assert.Equal(t, StatusUnknown, status)
}

func TestAskAsyncConflict(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.AskAsync(ctx, "First", nil)
	require.NoError(t, err)

	_, err = svc.AskAsync(ctx, "Second", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err))
	assert.Equal(t, 409, apperrors.GetHTTPStatus(err))
}

func TestResolveReplyNoPendingDecision(t *testing.T) {
	svc, _ := newTestService(t)

	// A reply with nothing pending is acknowledged as a no-op.
	assert.False(t, svc.ResolveReply(context.Background(), "hello"))
}

func TestResolveReplyDuplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.AskAsync(ctx, "Proceed?", []string{"Yes", "No"})
	require.NoError(t, err)

	assert.True(t, svc.ResolveReply(ctx, "1"))
	assert.False(t, svc.ResolveReply(ctx, "2"), "second reply must be a no-op")

	answer, _ := svc.Poll(id)
	assert.Equal(t, "Yes", answer, "first reply wins")
}

func TestMapReply(t *testing.T) {
	options := []string{"Yes", "No"}
	cases := []struct {
		reply string
		want  string
	}{
		{"1", "Yes"},
		{"2", "No"},
		{"3", "3"}, // out of range: verbatim
		{"0", "0"},
		{"Yes", "Yes"},
		{"  ship it  ", "ship it"},
		{"-1", "-1"},
		{"", ""},
		{"   ", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, MapReply(tc.reply, options), "reply %q", tc.reply)
	}

	// With no options, any trimmed text is accepted verbatim.
	assert.Equal(t, "1", MapReply("1", nil))
}
