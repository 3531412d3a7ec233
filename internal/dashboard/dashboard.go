package dashboard

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"readiculous/internal/clock"
	"readiculous/internal/events"
	"readiculous/internal/logger"
	"readiculous/internal/models/record"
	"readiculous/internal/service"
	"readiculous/internal/timeline"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RecordSource - то, что агрегатору нужно от сервиса записей
type RecordSource interface {
	List(ctx context.Context, owner string, kind record.Kind, opts service.ListOptions) ([]*record.Record, error)
	Get(ctx context.Context, owner string, kind record.Kind, id uuid.UUID) (*record.Record, error)
	NewSession(owner string, kind record.Kind) *service.Session
}

type Section struct {
	Kind     record.Kind          `json:"kind"`
	Field    record.Field         `json:"field"`
	All      []*record.Record     `json:"all"`
	DueToday []*record.Record     `json:"due_today"`
	Grouped  timeline.GroupedView `json:"grouped"`
}

// Snapshot - всё, что показывает главный экран владельца на момент GeneratedAt
type Snapshot struct {
	OwnerID       string          `json:"owner_id"`
	Day           timeline.DayKey `json:"day"`
	GeneratedAt   time.Time       `json:"generated_at"`
	Tasks         Section         `json:"tasks"`
	Assessments   Section         `json:"assessments"`
	DueTodayCount int             `json:"due_today_count"`

	seq        uint64
	generation uint64
}

func (s *Snapshot) Section(kind record.Kind) Section {
	if kind == record.KindAssessment {
		return s.Assessments
	}
	return s.Tasks
}

func emptySection(kind record.Kind) Section {
	return Section{
		Kind:     kind,
		Field:    record.DefaultOrder(kind),
		All:      []*record.Record{},
		DueToday: []*record.Record{},
		Grouped:  timeline.GroupedView{},
	}
}

func emptySnapshot(owner string, now time.Time) *Snapshot {
	return &Snapshot{
		OwnerID:     owner,
		Day:         timeline.DayKeyOf(now, now.Location()),
		GeneratedAt: now,
		Tasks:       emptySection(record.KindTask),
		Assessments: emptySection(record.KindAssessment),
	}
}

// Aggregator хранит последний снимок каждого владельца и заменяет его целиком при обновлении.
// Любое изменение данных владельца (Invalidate) делает снимок недействительным до следующего Refresh.
type Aggregator struct {
	records     RecordSource
	clock       clock.Clock
	mu          sync.RWMutex
	snapshots   map[string]*Snapshot
	generations map[string]uint64
	seq         uint64
}

// New - loc задаёт зону, в которой считается "сегодня"
func New(records RecordSource, clk clock.Clock, loc *time.Location) *Aggregator {
	if clk == nil {
		clk = clock.System()
	}
	if loc == nil {
		loc = time.Local
	}
	return &Aggregator{
		records:   records,
		clock:     clock.InLocation(clk, loc),
		snapshots:   make(map[string]*Snapshot),
		generations: make(map[string]uint64),
	}
}

// Invalidate помечает данные владельца изменёнными. Вызывается синхронно при каждой попытке изменения.
func (a *Aggregator) Invalidate(owner string) {
	if owner == "" {
		return
	}
	a.mu.Lock()
	a.generations[owner]++
	a.mu.Unlock()
}

// Publish позволяет подключить агрегатор к редактору записей как events.Publisher
func (a *Aggregator) Publish(e events.Event) {
	a.Invalidate(e.OwnerID)
}

// fresh - снимок посчитан сегодня и после него данные не менялись. Вызывать под a.mu.
func (a *Aggregator) fresh(snapshot *Snapshot, today timeline.DayKey) bool {
	return snapshot.Day == today && snapshot.generation == a.generations[snapshot.OwnerID]
}

// Refresh перечитывает записи владельца и публикует новый снимок. При ошибке остаётся прежний.
// Если за время чтения опубликован снимок более позднего обновления, возвращается он.
// Без владельца возвращается пустой снимок.
func (a *Aggregator) Refresh(ctx context.Context, owner string) (*Snapshot, error) {
	now := a.clock.Now()
	if owner == "" {
		return emptySnapshot("", now), nil
	}
	start := time.Now()

	a.mu.Lock()
	a.seq++
	seq := a.seq
	generation := a.generations[owner]
	a.mu.Unlock()

	tasks, err := a.section(ctx, owner, record.KindTask, now)
	if err != nil {
		return nil, err
	}
	assessments, err := a.section(ctx, owner, record.KindAssessment, now)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		OwnerID:       owner,
		Day:           timeline.DayKeyOf(now, now.Location()),
		GeneratedAt:   now,
		Tasks:         tasks,
		Assessments:   assessments,
		DueTodayCount: len(tasks.DueToday) + len(assessments.DueToday),
		seq:           seq,
		generation:    generation,
	}

	a.mu.Lock()
	if current, ok := a.snapshots[owner]; ok && current.seq > seq {
		a.mu.Unlock()
		logger.Debug("Dashboard: Снимок устарел до публикации, оставлен более новый",
			zap.String("owner_id", owner),
			zap.Uint64("seq", seq),
			zap.Uint64("current_seq", current.seq))
		return current, nil
	}
	a.snapshots[owner] = snapshot
	a.mu.Unlock()

	logger.Info("Dashboard: Снимок обновлён",
		zap.String("owner_id", owner),
		zap.Int("due_today", snapshot.DueTodayCount),
		zap.Duration("ms", time.Since(start)))
	return snapshot, nil
}

func (a *Aggregator) section(ctx context.Context, owner string, kind record.Kind, now time.Time) (Section, error) {
	field := record.DefaultOrder(kind)
	list, err := a.records.List(ctx, owner, kind, service.ListOptions{})
	if err != nil {
		logger.Error("Dashboard: Не удалось получить записи", err, zap.String("owner_id", owner), zap.String("kind", string(kind)))
		return Section{}, fmt.Errorf("получение %s: %w", kind, err)
	}
	return Section{
		Kind:     kind,
		Field:    field,
		All:      list,
		DueToday: timeline.DueToday(list, field, now),
		Grouped:  timeline.GroupByDay(list, field, now.Location()),
	}, nil
}

// Snapshot возвращает последний опубликованный снимок
func (a *Aggregator) Snapshot(owner string) (*Snapshot, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snapshot, ok := a.snapshots[owner]
	return snapshot, ok
}

// Current отдаёт снимок, если он посчитан сегодня и данные с тех пор не менялись, иначе пересчитывает
func (a *Aggregator) Current(ctx context.Context, owner string) (*Snapshot, error) {
	now := a.clock.Now()
	today := timeline.DayKeyOf(now, now.Location())

	a.mu.RLock()
	snapshot, ok := a.snapshots[owner]
	cached := ok && a.fresh(snapshot, today)
	a.mu.RUnlock()
	if cached {
		return snapshot, nil
	}
	return a.Refresh(ctx, owner)
}

func (a *Aggregator) Owners() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	owners := make([]string, 0, len(a.snapshots))
	for owner := range a.snapshots {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

// Stale - владельцы, чей снимок посчитан не сегодня или пропустил изменение
func (a *Aggregator) Stale() []string {
	now := a.clock.Now()
	today := timeline.DayKeyOf(now, now.Location())

	a.mu.RLock()
	defer a.mu.RUnlock()
	owners := []string{}
	for owner, snapshot := range a.snapshots {
		if !a.fresh(snapshot, today) {
			owners = append(owners, owner)
		}
	}
	sort.Strings(owners)
	return owners
}

// OpenForEdit - нажатие на запись в списке: открывает форму редактирования
func (a *Aggregator) OpenForEdit(ctx context.Context, owner string, kind record.Kind, id uuid.UUID) (*service.Session, error) {
	existing, err := a.records.Get(ctx, owner, kind, id)
	if err != nil {
		return nil, err
	}
	session := a.records.NewSession(owner, kind)
	session.Open(existing)
	return session, nil
}

// Run перечитывает данные владельца на каждый сигнал обновления до отмены контекста
func (a *Aggregator) Run(ctx context.Context, signals <-chan events.Event) error {
	logger.Info("Dashboard: Запуск обработки сигналов обновления")
	for {
		select {
		case <-ctx.Done():
			logger.Info("Dashboard: Остановка")
			return nil
		case e, ok := <-signals:
			if !ok {
				return nil
			}
			if e.OwnerID == "" {
				continue
			}
			if _, err := a.Refresh(ctx, e.OwnerID); err != nil {
				logger.Warn("Dashboard: Обновление по сигналу не удалось",
					zap.String("event", e.Describe()),
					zap.Error(err))
			}
		}
	}
}
