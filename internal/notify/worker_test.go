package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/go-store-orders/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	channel string
	ev      Event
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []call
	err   error
	panic bool
}

func (f *fakeNotifier) Notify(_ context.Context, channel string, ev Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{channel: channel, ev: ev})
	if f.panic {
		panic("notifier exploded")
	}
	return f.err
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (f *fakeEmail) SendEmail(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, to+"|"+subject+"|"+body)
	return f.err
}

func (f *fakeEmail) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

// runWorker closes q and runs w until it has drained every queued job.
func runWorker(t *testing.T, w *Worker, q *Queue) {
	t.Helper()
	q.Close()
	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after queue drained")
	}
}

func TestWorkerRetriesRealtimePush(t *testing.T) {
	q := NewQueue()
	n := &fakeNotifier{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w := &Worker{Source: q, Notifier: n, Log: logger.Nop(), Now: func() time.Time { return fixed }}

	require.NoError(t, q.Enqueue(Job{Kind: JobRetryRealtimePush, Recipient: "user-7", NotificationID: 11, OrderID: 3, Payload: "Order #3: Pending → Shipped"}))
	runWorker(t, w, q)

	require.Equal(t, 1, n.count())
	assert.Equal(t, "user-7", n.calls[0].channel)
	assert.Equal(t, Event{
		Type:           EventOrderStatusChanged,
		NotificationID: 11,
		OrderID:        3,
		Message:        "Order #3: Pending → Shipped",
		CreatedAt:      fixed,
	}, n.calls[0].ev)
}

func TestWorkerRetryKeepsNotificationTimestamp(t *testing.T) {
	q := NewQueue()
	n := &fakeNotifier{}
	created := time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC)
	w := &Worker{Source: q, Notifier: n, Log: logger.Nop(), Now: func() time.Time { return created.Add(time.Hour) }}

	require.NoError(t, q.Enqueue(Job{Kind: JobRetryRealtimePush, Recipient: "user-7", NotificationID: 12, CreatedAt: created}))
	runWorker(t, w, q)

	require.Equal(t, 1, n.count())
	assert.Equal(t, created, n.calls[0].ev.CreatedAt)
}

func TestWorkerDropsFailedPushAfterOneAttempt(t *testing.T) {
	q := NewQueue()
	n := &fakeNotifier{err: errors.New("redis down")}
	w := &Worker{Source: q, Notifier: n, Log: logger.Nop()}

	require.NoError(t, q.Enqueue(Job{Kind: JobRetryRealtimePush, Recipient: "user-1", NotificationID: 1}))
	require.NoError(t, q.Enqueue(Job{Kind: JobRetryRealtimePush, Recipient: "user-2", NotificationID: 2}))
	runWorker(t, w, q)

	assert.Equal(t, 2, n.count())
	assert.Equal(t, 0, q.Len())
}

func TestWorkerSendsEmail(t *testing.T) {
	q := NewQueue()
	mail := &fakeEmail{}
	w := &Worker{Source: q, Email: mail, Log: logger.Nop()}

	require.NoError(t, q.Enqueue(Job{Kind: JobSendEmail, Recipient: "a@example.com", Payload: "shipped"}))
	require.NoError(t, q.Enqueue(Job{Kind: JobSendEmail, Recipient: "", Payload: "no address"}))
	runWorker(t, w, q)

	assert.Equal(t, []string{"a@example.com|Order update|shipped"}, mail.sent)
}

func TestWorkerSurvivesFailingAndPanickingJobs(t *testing.T) {
	q := NewQueue()
	boom := &fakeNotifier{panic: true}
	mail := &fakeEmail{err: errors.New("smtp 550")}
	w := &Worker{Source: q, Notifier: boom, Email: mail, Log: logger.Nop()}

	require.NoError(t, q.Enqueue(Job{Kind: JobRetryRealtimePush, Recipient: "user-1"}))
	require.NoError(t, q.Enqueue(Job{Kind: JobSendEmail, Recipient: "b@example.com"}))
	require.NoError(t, q.Enqueue(Job{Kind: "bogus"}))
	require.NoError(t, q.Enqueue(Job{Kind: JobSendEmail, Recipient: "c@example.com"}))
	runWorker(t, w, q)

	assert.Equal(t, 1, boom.count())
	assert.Equal(t, 2, mail.count())
}

func TestWorkerStopsOnCancellation(t *testing.T) {
	q := NewQueue()
	w := &Worker{Source: q, Log: logger.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("worker ignored cancellation")
	}
}

type flakySource struct {
	mu    sync.Mutex
	calls int
	q     *Queue
}

func (f *flakySource) Dequeue(ctx context.Context) (Job, error) {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n == 1 {
		return Job{}, errors.New("transient")
	}
	return f.q.Dequeue(ctx)
}

func TestWorkerPausesAndResumesAfterLoopFault(t *testing.T) {
	q := NewQueue()
	mail := &fakeEmail{}
	src := &flakySource{q: q}
	w := &Worker{Source: src, Email: mail, Log: logger.Nop(), FaultPause: 20 * time.Millisecond}

	require.NoError(t, q.Enqueue(Job{Kind: JobSendEmail, Recipient: "d@example.com"}))
	q.Close()

	start := time.Now()
	require.NoError(t, w.Run(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	assert.Equal(t, 1, mail.count())
}
