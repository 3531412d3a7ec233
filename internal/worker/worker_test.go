package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"readiculous/internal/dashboard"
	"readiculous/internal/notify"
	"readiculous/internal/notify/local"
	"readiculous/internal/worker"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockRefresher - мок агрегатора
type MockRefresher struct {
	mock.Mock
}

var _ worker.Refresher = (*MockRefresher)(nil)

func (m *MockRefresher) Stale() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockRefresher) Refresh(ctx context.Context, owner string) (*dashboard.Snapshot, error) {
	args := m.Called(ctx, owner)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dashboard.Snapshot), args.Error(1)
}

// TestRolloverWorker_Check тестирует пересчёт устаревших снимков
func TestRolloverWorker_Check(t *testing.T) {
	tests := []struct {
		name      string
		batch     int
		setupMock func(*MockRefresher)
		want      int
	}{
		{
			name: "nothing stale",
			setupMock: func(m *MockRefresher) {
				m.On("Stale").Return([]string{})
			},
			want: 0,
		},
		{
			name: "refreshes every stale owner",
			setupMock: func(m *MockRefresher) {
				m.On("Stale").Return([]string{"user-1", "user-2"})
				m.On("Refresh", mock.Anything, "user-1").Return(&dashboard.Snapshot{}, nil)
				m.On("Refresh", mock.Anything, "user-2").Return(&dashboard.Snapshot{}, nil)
			},
			want: 2,
		},
		{
			name: "failure does not stop the pass",
			setupMock: func(m *MockRefresher) {
				m.On("Stale").Return([]string{"user-1", "user-2"})
				m.On("Refresh", mock.Anything, "user-1").Return(nil, errors.New("store down"))
				m.On("Refresh", mock.Anything, "user-2").Return(&dashboard.Snapshot{}, nil)
			},
			want: 1,
		},
		{
			name:  "batch limit",
			batch: 1,
			setupMock: func(m *MockRefresher) {
				m.On("Stale").Return([]string{"user-1", "user-2"})
				m.On("Refresh", mock.Anything, "user-1").Return(&dashboard.Snapshot{}, nil)
			},
			want: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockRefresher)
			tt.setupMock(m)

			var batch *int
			if tt.batch > 0 {
				batch = &tt.batch
			}
			w := worker.NewRolloverWorker(m, nil, batch)

			assert.Equal(t, tt.want, w.Check(context.Background()))
			m.AssertExpectations(t)
		})
	}
}

// TestRolloverWorker_Start тестирует запуск по тикеру и остановку
func TestRolloverWorker_Start(t *testing.T) {
	m := new(MockRefresher)
	ticked := make(chan struct{}, 1)
	m.On("Stale").Return([]string{}).Run(func(mock.Arguments) {
		select {
		case ticked <- struct{}{}:
		default:
		}
	})

	interval := 10 * time.Millisecond
	w := worker.NewRolloverWorker(m, &interval, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	select {
	case <-ticked:
	case <-time.After(time.Second):
		t.Fatal("тикер не сработал")
	}

	cancel()
	require.NoError(t, <-done)
}

// TestDeliveryWorker тестирует доставку сработавших уведомлений
func TestDeliveryWorker(t *testing.T) {
	notifier := local.New(notify.PermissionGranted, 8)

	var mu sync.Mutex
	var got []string
	w := worker.NewDeliveryWorker(notifier.C(), func(f local.Fired) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f.Notification.Title)
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = notifier.Run(ctx) }()

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	_, err := notifier.Schedule(ctx, notify.Notification{Title: "second", Delay: 40 * time.Millisecond})
	require.NoError(t, err)
	_, err = notifier.Schedule(ctx, notify.Notification{Title: "first", Delay: 10 * time.Millisecond})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return w.Delivered() == 2 }, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.Equal(t, []string{"first", "second"}, got)
	mu.Unlock()

	// после остановки планировщика канал закрывается и воркер выходит
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("воркер не остановился")
	}
}
