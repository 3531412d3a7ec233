package local_test

import (
	"context"
	"testing"
	"time"

	"readiculous/internal/notify"
	"readiculous/internal/notify/local"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func start(t *testing.T, n *local.Notifier) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = n.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func waitFired(t *testing.T, ch <-chan local.Fired, timeout time.Duration) local.Fired {
	t.Helper()
	select {
	case fired := <-ch:
		return fired
	case <-time.After(timeout):
		t.Fatalf("уведомление не пришло за %s", timeout)
		return local.Fired{}
	}
}

// TestNotifier_FiresInOrder тестирует порядок срабатывания по времени
func TestNotifier_FiresInOrder(t *testing.T) {
	n := local.New(notify.PermissionGranted, 8)
	start(t, n)
	ctx := context.Background()

	_, err := n.Schedule(ctx, notify.Notification{Title: "later", Delay: 80 * time.Millisecond})
	require.NoError(t, err)
	_, err = n.Schedule(ctx, notify.Notification{Title: "sooner", Delay: 20 * time.Millisecond})
	require.NoError(t, err)

	first := waitFired(t, n.C(), time.Second)
	second := waitFired(t, n.C(), time.Second)
	assert.Equal(t, "sooner", first.Notification.Title)
	assert.Equal(t, "later", second.Notification.Title)
	assert.False(t, first.FiredAt.Before(first.FireAt))
	assert.Equal(t, 0, n.Pending())
}

// TestNotifier_Cancel тестирует снятие уведомления до срабатывания
func TestNotifier_Cancel(t *testing.T) {
	n := local.New(notify.PermissionGranted, 8)
	start(t, n)
	ctx := context.Background()

	canceled, err := n.Schedule(ctx, notify.Notification{Title: "canceled", Delay: 30 * time.Millisecond})
	require.NoError(t, err)
	_, err = n.Schedule(ctx, notify.Notification{Title: "kept", Delay: 60 * time.Millisecond})
	require.NoError(t, err)

	assert.True(t, n.Cancel(canceled))
	assert.False(t, n.Cancel(canceled))
	assert.Equal(t, 1, n.Pending())

	fired := waitFired(t, n.C(), time.Second)
	assert.Equal(t, "kept", fired.Notification.Title)
}

// TestNotifier_DropsWhenConsumerIsSlow тестирует неблокирующую отдачу
func TestNotifier_DropsWhenConsumerIsSlow(t *testing.T) {
	n := local.New(notify.PermissionGranted, 1)
	start(t, n)

	for i := 0; i < 25; i++ {
		_, err := n.Schedule(context.Background(), notify.Notification{Title: "evt", Delay: 20 * time.Millisecond})
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool { return n.Dropped() > 0 }, time.Second, 10*time.Millisecond)
}

func TestNotifier_Permission(t *testing.T) {
	n := local.New(notify.PermissionDenied, 1)

	p, err := n.CheckPermission(context.Background())
	require.NoError(t, err)
	assert.Equal(t, notify.PermissionDenied, p)

	require.NoError(t, n.SetPermission(notify.PermissionGranted))
	assert.Equal(t, notify.PermissionGranted, n.Permission())

	assert.Error(t, n.SetPermission(notify.Permission("maybe")))
	assert.Equal(t, notify.PermissionGranted, n.Permission())

	assert.Equal(t, notify.PermissionUndetermined, local.New("", 1).Permission())
}

func TestNotifier_ScheduleValidation(t *testing.T) {
	n := local.New(notify.PermissionGranted, 1)

	_, err := n.Schedule(context.Background(), notify.Notification{Title: "bad"})
	assert.ErrorIs(t, err, local.ErrInvalidDelay)
}

// TestNotifier_StoppedRejects тестирует отказ после остановки и закрытие канала
func TestNotifier_StoppedRejects(t *testing.T) {
	n := local.New(notify.PermissionGranted, 1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx) }()

	cancel()
	require.NoError(t, <-done)

	_, ok := <-n.C()
	assert.False(t, ok)

	_, err := n.Schedule(context.Background(), notify.Notification{Title: "late", Delay: time.Second})
	assert.ErrorIs(t, err, local.ErrStopped)
}

// TestNotifier_WithScheduler тестирует связку планировщика и локальных уведомлений
func TestNotifier_WithScheduler(t *testing.T) {
	n := local.New(notify.PermissionGranted, 4)
	start(t, n)
	scheduler := notify.NewScheduler(n, notify.WithFallbackDelay(50*time.Millisecond))

	out := scheduler.Schedule(context.Background(), notify.Request{
		Label:  "Task Reminder",
		Kind:   "task",
		Title:  "Review notes",
		Target: time.Now().Add(-time.Hour),
	})
	require.Equal(t, notify.StateFallbackScheduled, out.State)

	fired := waitFired(t, n.C(), time.Second)
	assert.Equal(t, out.NotificationID, fired.ID)
	assert.Equal(t, "Task Reminder (Fallback)", fired.Notification.Title)
}
