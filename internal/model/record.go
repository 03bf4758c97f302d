// Package model defines the records, tasks, and run results shared by the
// collection pipelines, the dispatcher, and the scheduler.
package model

import (
	"strings"
	"time"
)

// Priority is the derived outreach priority of a record.
type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

// Record is a collected contact. ExternalKey is the provider's canonical
// profile URL and is the dedup key.
type Record struct {
	ID              string    `json:"id"`
	ExternalKey     string    `json:"external_key"`
	Name            string    `json:"name"`
	Title           string    `json:"title"`
	Organization    string    `json:"organization"`
	Location        string    `json:"location"`
	Email           *string   `json:"email"`
	Phone           *string   `json:"phone"`
	Industry        string    `json:"industry"`
	ConnectionLevel string    `json:"connection_level"`
	Summary         string    `json:"summary"`
	Experience      string    `json:"experience,omitempty"`
	Education       string    `json:"education,omitempty"`
	Skills          string    `json:"skills,omitempty"`
	Source          string    `json:"source,omitempty"`
	Verified        bool      `json:"verified"`
	Segment         string    `json:"segment"`
	Priority        Priority  `json:"priority"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasEmail reports whether the record carries a non-empty email.
func (r Record) HasEmail() bool {
	return r.Email != nil && strings.TrimSpace(*r.Email) != ""
}

// HasPhone reports whether the record carries a non-empty phone number.
func (r Record) HasPhone() bool {
	return r.Phone != nil && strings.TrimSpace(*r.Phone) != ""
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
