package timeline

import (
	"sort"
	"time"

	"readiculous/internal/models/record"
)

// DayKey - ключ календарного дня вида 2006-01-02, не зависит от локали
type DayKey string

// NoDate - корзина для записей без нужного поля времени
const NoDate DayKey = "no-date"

const dayKeyLayout = "2006-01-02"

type Group struct {
	Key     DayKey           `json:"key"`
	Day     time.Time        `json:"day"`
	Records []*record.Record `json:"records"`
}

// GroupedView - группы по дням, отсортированные по дате, группа без даты последняя
type GroupedView []Group

func (v GroupedView) Get(key DayKey) (Group, bool) {
	for _, g := range v {
		if g.Key == key {
			return g, true
		}
	}
	return Group{}, false
}

func (v GroupedView) Keys() []DayKey {
	keys := make([]DayKey, len(v))
	for i, g := range v {
		keys[i] = g.Key
	}
	return keys
}

func (v GroupedView) Len() int {
	n := 0
	for _, g := range v {
		n += len(g.Records)
	}
	return n
}

func DayKeyOf(t time.Time, loc *time.Location) DayKey {
	return DayKey(startOfDay(t, loc).Format(dayKeyLayout))
}

// GroupByDay раскладывает записи по календарным дням в зоне loc.
// Каждая запись попадает ровно в одну группу, порядок внутри группы сохраняется.
func GroupByDay(records []*record.Record, field record.Field, loc *time.Location) GroupedView {
	if loc == nil {
		loc = time.Local
	}

	index := make(map[DayKey]int)
	view := GroupedView{}
	var noDate []*record.Record

	for _, r := range records {
		instant, ok := r.Instant(field)
		if !ok {
			noDate = append(noDate, r)
			continue
		}

		day := startOfDay(instant, loc)
		key := DayKey(day.Format(dayKeyLayout))
		pos, exists := index[key]
		if !exists {
			pos = len(view)
			index[key] = pos
			view = append(view, Group{Key: key, Day: day})
		}
		view[pos].Records = append(view[pos].Records, r)
	}

	sort.SliceStable(view, func(i, j int) bool {
		return view[i].Day.Before(view[j].Day)
	})

	if len(noDate) > 0 {
		view = append(view, Group{Key: NoDate, Records: noDate})
	}
	return view
}

// IsDueToday - true, если поле задано и его дата совпадает с датой now.
// Обе даты считаются в зоне now.
func IsDueToday(r *record.Record, field record.Field, now time.Time) bool {
	instant, ok := r.Instant(field)
	if !ok {
		return false
	}
	loc := now.Location()
	y1, m1, d1 := instant.In(loc).Date()
	y2, m2, d2 := now.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func DueToday(records []*record.Record, field record.Field, now time.Time) []*record.Record {
	res := []*record.Record{}
	for _, r := range records {
		if IsDueToday(r, field, now) {
			res = append(res, r)
		}
	}
	return res
}

func startOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}
