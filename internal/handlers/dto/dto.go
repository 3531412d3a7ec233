package dto

import (
	"time"

	"readiculous/internal/dashboard"
	"readiculous/internal/models/record"
	"readiculous/internal/notify"
	"readiculous/internal/service"
	"readiculous/internal/timeline"

	"github.com/google/uuid"
)

type CreateRecordRequest struct {
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	ReminderTime *time.Time `json:"reminder_time,omitempty"`
	DueTime      *time.Time `json:"due_time,omitempty"`
	Subject      string     `json:"subject,omitempty"`
}

func (r CreateRecordRequest) Draft(kind record.Kind) record.Draft {
	d := record.NewDraft(kind)
	d.Title = r.Title
	d.Description = r.Description
	d.ReminderTime = r.ReminderTime
	if kind == record.KindAssessment {
		d.DueTime = r.DueTime
		d.Subject = r.Subject
	}
	return d
}

// UpdateRecordRequest - незаданные поля не меняются, clear_reminder снимает напоминание
type UpdateRecordRequest struct {
	Title         *string    `json:"title,omitempty"`
	Description   *string    `json:"description,omitempty"`
	ReminderTime  *time.Time `json:"reminder_time,omitempty"`
	ClearReminder bool       `json:"clear_reminder,omitempty"`
	DueTime       *time.Time `json:"due_time,omitempty"`
	Subject       *string    `json:"subject,omitempty"`
}

func (r UpdateRecordRequest) IsEmpty() bool {
	return r.Title == nil && r.Description == nil && r.ReminderTime == nil &&
		!r.ClearReminder && r.DueTime == nil && r.Subject == nil
}

func (r UpdateRecordRequest) Apply(d *record.Draft) {
	if r.Title != nil {
		d.Title = *r.Title
	}
	if r.Description != nil {
		d.Description = *r.Description
	}
	if r.ClearReminder {
		d.ReminderTime = nil
	} else if r.ReminderTime != nil {
		t := *r.ReminderTime
		d.ReminderTime = &t
	}
	if d.Kind == record.KindAssessment {
		if r.DueTime != nil {
			t := *r.DueTime
			d.DueTime = &t
		}
		if r.Subject != nil {
			d.Subject = *r.Subject
		}
	}
}

type PermissionRequest struct {
	Permission notify.Permission `json:"permission"`
}

type RecordResponse struct {
	ID           uuid.UUID   `json:"id"`
	Kind         record.Kind `json:"kind"`
	Title        string      `json:"title"`
	Description  string      `json:"description"`
	ReminderTime *time.Time  `json:"reminder_time,omitempty"`
	DueTime      *time.Time  `json:"due_time,omitempty"`
	Subject      string      `json:"subject,omitempty"`
	Completed    *bool       `json:"completed,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    *time.Time  `json:"updated_at,omitempty"`
}

func FromRecord(r *record.Record) RecordResponse {
	resp := RecordResponse{
		ID:           r.ID,
		Kind:         r.Kind,
		Title:        r.Title,
		Description:  r.Description,
		ReminderTime: r.ReminderTime,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	switch r.Kind {
	case record.KindTask:
		completed := r.Completed
		resp.Completed = &completed
	case record.KindAssessment:
		resp.DueTime = r.DueTime
		resp.Subject = r.Subject
	}
	return resp
}

func FromRecordList(records []*record.Record) []RecordResponse {
	result := make([]RecordResponse, len(records))
	for i, r := range records {
		result[i] = FromRecord(r)
	}
	return result
}

type GroupResponse struct {
	Day     timeline.DayKey  `json:"day"`
	Records []RecordResponse `json:"records"`
}

func FromGroupedView(view timeline.GroupedView) []GroupResponse {
	result := make([]GroupResponse, len(view))
	for i, g := range view {
		result[i] = GroupResponse{Day: g.Key, Records: FromRecordList(g.Records)}
	}
	return result
}

type ReminderResponse struct {
	State          notify.State   `json:"state"`
	NotificationID string         `json:"notification_id,omitempty"`
	DelaySeconds   int64          `json:"delay_seconds"`
	Title          string         `json:"title,omitempty"`
	Body           string         `json:"body,omitempty"`
	Path           []notify.State `json:"path"`
	Error          string         `json:"error,omitempty"`
}

func FromOutcome(o notify.Outcome) ReminderResponse {
	resp := ReminderResponse{
		State:          o.State,
		NotificationID: o.NotificationID,
		DelaySeconds:   o.DelaySeconds,
		Title:          o.Title,
		Body:           o.Body,
		Path:           o.Path,
	}
	if o.Err != nil {
		resp.Error = o.Err.Error()
	}
	return resp
}

type SubmitResponse struct {
	Record   RecordResponse    `json:"record"`
	Reminder *ReminderResponse `json:"reminder,omitempty"`
}

func FromSubmit(res service.SubmitResult) SubmitResponse {
	resp := SubmitResponse{Record: FromRecord(res.Record)}
	if res.Reminder != nil {
		reminder := FromOutcome(*res.Reminder)
		resp.Reminder = &reminder
	}
	return resp
}

type SectionResponse struct {
	DueToday []RecordResponse `json:"due_today"`
	Groups   []GroupResponse  `json:"groups"`
}

type DashboardResponse struct {
	Day           timeline.DayKey `json:"day"`
	GeneratedAt   time.Time       `json:"generated_at"`
	DueTodayCount int             `json:"due_today_count"`
	Tasks         SectionResponse `json:"tasks"`
	Assessments   SectionResponse `json:"assessments"`
}

func FromSnapshot(s *dashboard.Snapshot) DashboardResponse {
	return DashboardResponse{
		Day:           s.Day,
		GeneratedAt:   s.GeneratedAt,
		DueTodayCount: s.DueTodayCount,
		Tasks:         fromSection(s.Tasks),
		Assessments:   fromSection(s.Assessments),
	}
}

func fromSection(s dashboard.Section) SectionResponse {
	return SectionResponse{
		DueToday: FromRecordList(s.DueToday),
		Groups:   FromGroupedView(s.Grouped),
	}
}
