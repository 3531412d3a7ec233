package events

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"readiculous/internal/models/record"

	"github.com/google/uuid"
)

// Reason - что вызвало сигнал обновления
type Reason string

const (
	ReasonCreated  Reason = "created"
	ReasonUpdated  Reason = "updated"
	ReasonDeleted  Reason = "deleted"
	ReasonToggled  Reason = "toggled"
	ReasonFailed   Reason = "failed"
	ReasonRollover Reason = "rollover"
)

// Event - сигнал "данные владельца могли измениться, перечитай". Публикуется после каждой
// попытки изменения, успешной или нет.
type Event struct {
	OwnerID  string
	Reason   Reason
	Kind     record.Kind
	RecordID uuid.UUID
	At       time.Time
}

func (e Event) Describe() string {
	return fmt.Sprintf(`owner:%q reason:%q kind:%q id:%s`, e.OwnerID, e.Reason, e.Kind, e.RecordID)
}

// Publisher - то, что нужно редактору записей
type Publisher interface {
	Publish(e Event)
}

type PublisherFunc func(e Event)

func (f PublisherFunc) Publish(e Event) {
	f(e)
}

// Fanout отдаёт событие всем получателям по порядку. nil пропускаются.
func Fanout(publishers ...Publisher) Publisher {
	return PublisherFunc(func(e Event) {
		for _, p := range publishers {
			if p != nil {
				p.Publish(e)
			}
		}
	})
}

// Bus раздаёт события всем подписчикам. Publish не блокируется: если буфер подписчика полон,
// событие для него отбрасывается и учитывается в Dropped. Синхронная пометка изменений идёт
// отдельным получателем через Fanout, поэтому потеря события задерживает только фоновое обновление.
type Bus struct {
	mu      sync.RWMutex
	subs    map[int]chan Event
	next    int
	closed  bool
	dropped uint64
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
}

func (b *Bus) Publish(e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			atomic.AddUint64(&b.dropped, 1)
		}
	}
}

func (b *Bus) Dropped() uint64 {
	return atomic.LoadUint64(&b.dropped)
}

// Close закрывает каналы всех подписчиков, дальнейшие Publish ничего не делают
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
