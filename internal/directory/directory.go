// Package directory describes employees, their notifications and the work
// log, and the Provider contract the kiosk reads them through.
package directory

import (
	"context"
	"errors"
	"sort"
	"time"
)

// ErrNotFound reports that no employee carries the requested card tag.
var ErrNotFound = errors.New("employee not found")

type WorkStatus string

const (
	WorkActive   WorkStatus = "active"
	WorkInactive WorkStatus = "inactive"
)

// Valid reports whether s is one of the two work states.
func (s WorkStatus) Valid() bool {
	return s == WorkActive || s == WorkInactive
}

type NotificationType string

const (
	NotificationMedical  NotificationType = "MEDICAL"
	NotificationTraining NotificationType = "TRAINING"
	NotificationInfo     NotificationType = "INFO"
	NotificationUrgent   NotificationType = "URGENT"
)

// Pressing reports whether the notification deserves emphasis on screen
// and in the daily briefing.
func (t NotificationType) Pressing() bool {
	return t == NotificationMedical || t == NotificationUrgent
}

type Employee struct {
	ID             string     `json:"id" yaml:"id"`
	RFIDTag        string     `json:"rfidTag" yaml:"rfid_tag"`
	FirstName      string     `json:"firstName" yaml:"first_name"`
	LastName       string     `json:"lastName" yaml:"last_name"`
	Position       string     `json:"position" yaml:"position"`
	Department     string     `json:"department" yaml:"department"`
	Color          string     `json:"color" yaml:"color"`
	WorkStatus     WorkStatus `json:"workStatus" yaml:"work_status"`
	LastWorkAction *time.Time `json:"lastWorkAction,omitempty" yaml:"last_work_action,omitempty"`
}

// FullName is the name used on screen and in telemetry.
func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// Clone returns a copy that shares no pointers with e.
func (e Employee) Clone() Employee {
	if e.LastWorkAction != nil {
		t := *e.LastWorkAction
		e.LastWorkAction = &t
	}
	return e
}

type Notification struct {
	ID          string           `json:"id" yaml:"id"`
	EmployeeID  string           `json:"employeeId" yaml:"employee_id"`
	Type        NotificationType `json:"type" yaml:"type"`
	Title       string           `json:"title" yaml:"title"`
	Description string           `json:"description" yaml:"description"`
	CreatedAt   time.Time        `json:"createdAt" yaml:"created_at"`
	DueDate     string           `json:"dueDate,omitempty" yaml:"due_date,omitempty"`
	IsRead      bool             `json:"isRead" yaml:"is_read"`
}

// WorkLog is one confirmed start or stop of work.
type WorkLog struct {
	ID         string     `json:"id"`
	EmployeeID string     `json:"employeeId"`
	Status     WorkStatus `json:"status"`
	Timestamp  time.Time  `json:"timestamp"`
}

// Provider is the kiosk's source of employee data. EmployeeByTag returns
// ErrNotFound (possibly wrapped) for an unknown tag; any other error means
// the data source itself failed.
type Provider interface {
	EmployeeByTag(ctx context.Context, tag string) (Employee, error)
	Notifications(ctx context.Context, employeeID string) ([]Notification, error)
	WriteWorkLog(ctx context.Context, employeeID string, status WorkStatus) error
}

// SortNewestFirst orders notifications by creation time, newest first.
func SortNewestFirst(ns []Notification) {
	sort.SliceStable(ns, func(i, j int) bool {
		return ns[i].CreatedAt.After(ns[j].CreatedAt)
	})
}
