package local

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"readiculous/internal/logger"
	"readiculous/internal/notify"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrStopped      = errors.New("local notifier: stopped")
	ErrInvalidDelay = errors.New("local notifier: invalid delay")
)

// Fired - уведомление, время которого наступило
type Fired struct {
	ID           string              `json:"id"`
	Notification notify.Notification `json:"notification"`
	FireAt       time.Time           `json:"fire_at"`
	FiredAt      time.Time           `json:"fired_at"`
}

type queueItem struct {
	id    string
	n     notify.Notification
	at    time.Time
	index int
}

type priorityQueue []*queueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	return pq[i].at.Before(pq[j].at)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x any) {
	item := x.(*queueItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *priorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*pq = old[0 : n-1]
	return item
}

// Notifier - уведомления внутри процесса: разрешение из конфига и одноразовые таймеры на куче.
// Сработавшие уведомления отдаются в C(), при медленном читателе отбрасываются.
type Notifier struct {
	mu         sync.Mutex
	permission notify.Permission
	queue      priorityQueue
	byID       map[string]*queueItem
	out        chan Fired
	wakeup     chan struct{}
	running    bool
	stopped    bool
	dropped    uint64
	now        func() time.Time
}

var _ notify.Capability = (*Notifier)(nil)

func New(permission notify.Permission, bufferSize int) *Notifier {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	if !permission.IsValid() {
		permission = notify.PermissionUndetermined
	}
	return &Notifier{
		permission: permission,
		queue:      make(priorityQueue, 0),
		byID:       make(map[string]*queueItem),
		out:        make(chan Fired, bufferSize),
		wakeup:     make(chan struct{}, 1),
		now:        time.Now,
	}
}

func (n *Notifier) C() <-chan Fired {
	return n.out
}

func (n *Notifier) CheckPermission(ctx context.Context) (notify.Permission, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission, nil
}

func (n *Notifier) Permission() notify.Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.permission
}

func (n *Notifier) SetPermission(p notify.Permission) error {
	if !p.IsValid() {
		return fmt.Errorf("неизвестное разрешение %q", p)
	}
	n.mu.Lock()
	n.permission = p
	n.mu.Unlock()
	logger.Info("Notifier: Разрешение на уведомления изменено", zap.String("permission", string(p)))
	return nil
}

func (n *Notifier) Schedule(ctx context.Context, notification notify.Notification) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if notification.Delay <= 0 {
		return "", ErrInvalidDelay
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stopped {
		return "", ErrStopped
	}

	item := &queueItem{
		id: uuid.NewString(),
		n:  notification,
		at: n.now().Add(notification.Delay),
	}
	heap.Push(&n.queue, item)
	n.byID[item.id] = item
	n.signalWakeup()
	return item.id, nil
}

// Cancel снимает ещё не сработавшее уведомление
func (n *Notifier) Cancel(id string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	item, ok := n.byID[id]
	if !ok {
		return false
	}
	heap.Remove(&n.queue, item.index)
	delete(n.byID, id)
	n.signalWakeup()
	return true
}

func (n *Notifier) Pending() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.queue)
}

func (n *Notifier) Dropped() uint64 {
	return atomic.LoadUint64(&n.dropped)
}

// Run обслуживает таймеры до отмены контекста, после выхода канал C() закрыт
func (n *Notifier) Run(ctx context.Context) error {
	n.mu.Lock()
	if n.running || n.stopped {
		n.mu.Unlock()
		return errors.New("local notifier: already running")
	}
	n.running = true
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		n.stopped = true
		n.mu.Unlock()
		close(n.out)
	}()

	logger.Info("Notifier: Запуск локальных уведомлений")

	var timer *time.Timer
	defer func() { stopTimer(timer) }()
	for {
		next, hasNext := n.peek()
		if !hasNext {
			select {
			case <-n.wakeup:
				continue
			case <-ctx.Done():
				logger.Info("Notifier: Остановка", zap.Int("pending", n.Pending()))
				return nil
			}
		}

		wait := next.Sub(n.now())
		if wait < 0 {
			wait = 0
		}
		timer = resetTimer(timer, wait)

		select {
		case <-timer.C:
			for _, fired := range n.popDue(n.now()) {
				select {
				case n.out <- fired:
				default:
					atomic.AddUint64(&n.dropped, 1)
					logger.Warn("Notifier: Уведомление отброшено, читатель не успевает", zap.String("notification_id", fired.ID))
				}
			}
		case <-n.wakeup:
			continue
		case <-ctx.Done():
			logger.Info("Notifier: Остановка", zap.Int("pending", n.Pending()))
			return nil
		}
	}
}

func (n *Notifier) signalWakeup() {
	select {
	case n.wakeup <- struct{}{}:
	default:
	}
}

func (n *Notifier) peek() (time.Time, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.queue) == 0 {
		return time.Time{}, false
	}
	return n.queue[0].at, true
}

func (n *Notifier) popDue(now time.Time) []Fired {
	n.mu.Lock()
	defer n.mu.Unlock()

	out := make([]Fired, 0)
	for len(n.queue) > 0 {
		if n.queue[0].at.After(now) {
			break
		}
		item := heap.Pop(&n.queue).(*queueItem)
		delete(n.byID, item.id)
		out = append(out, Fired{ID: item.id, Notification: item.n, FireAt: item.at, FiredAt: now})
	}
	return out
}

func resetTimer(timer *time.Timer, d time.Duration) *time.Timer {
	if timer == nil {
		return time.NewTimer(d)
	}
	stopTimer(timer)
	timer.Reset(d)
	return timer
}

func stopTimer(timer *time.Timer) {
	if timer == nil {
		return
	}
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
}
