// Package model holds the canonical shapes the digest pipeline works with and
// the normalization step that maps persisted documents onto them.
//
// Persisted documents have accumulated several field spellings over the life
// of the study app. Every legacy name is resolved here, once, so the digest
// package only ever sees the canonical types.
package model

import (
	"strings"
	"time"
)

// DefaultDisplayName is used in the greeting when a schedule has no name.
const DefaultDisplayName = "Student"

// Schedule is one user's email preference record.
type Schedule struct {
	UserID       string
	Email        string
	DisplayName  string
	EmailEnabled bool

	// PreferredTime is "HH:MM" in 24-hour UTC. Nil means "any hour".
	PreferredTime *string

	SelectedTopics []string

	// LastEmailSent is written only after the transport accepted a message.
	LastEmailSent *time.Time
}

// HasPreferredTime reports whether a non-blank preferred time is set.
func (s Schedule) HasPreferredTime() bool {
	return s.PreferredTime != nil && strings.TrimSpace(*s.PreferredTime) != ""
}

// ScheduleDocument is the raw email_schedules document. Tags cover both the
// DynamoDB attribute names and the JSONB keys used by the Postgres backend.
type ScheduleDocument struct {
	Email        string `json:"email" dynamodbav:"email"`
	EmailEnabled bool   `json:"emailEnabled" dynamodbav:"emailEnabled"`

	PreferredTime *string `json:"preferredTime,omitempty" dynamodbav:"preferredTime,omitempty"`

	SelectedTopics   []string `json:"selectedTopics,omitempty" dynamodbav:"selectedTopics,omitempty"`
	InterestedTopics []string `json:"interestedTopics,omitempty" dynamodbav:"interestedTopics,omitempty"` // legacy

	UserName    string `json:"userName,omitempty" dynamodbav:"userName,omitempty"`
	Name        string `json:"name,omitempty" dynamodbav:"name,omitempty"` // legacy
	DisplayName string `json:"displayName,omitempty" dynamodbav:"displayName,omitempty"`

	LastEmailSent *time.Time `json:"lastEmailSent,omitempty" dynamodbav:"lastEmailSent,omitempty"`
}

// Normalize maps the document onto the canonical Schedule.
//
// Topics: selectedTopics, then interestedTopics.
// Name:   userName, then name, then displayName, then DefaultDisplayName.
func (d ScheduleDocument) Normalize(userID string) Schedule {
	topics := d.SelectedTopics
	if len(topics) == 0 {
		topics = d.InterestedTopics
	}
	if topics == nil {
		topics = []string{}
	}

	name := firstNonBlank(d.UserName, d.Name, d.DisplayName)
	if name == "" {
		name = DefaultDisplayName
	}

	var preferred *string
	if d.PreferredTime != nil && strings.TrimSpace(*d.PreferredTime) != "" {
		p := strings.TrimSpace(*d.PreferredTime)
		preferred = &p
	}

	var lastSent *time.Time
	if d.LastEmailSent != nil && !d.LastEmailSent.IsZero() {
		t := d.LastEmailSent.UTC()
		lastSent = &t
	}

	return Schedule{
		UserID:         userID,
		Email:          strings.TrimSpace(d.Email),
		DisplayName:    name,
		EmailEnabled:   d.EmailEnabled,
		PreferredTime:  preferred,
		SelectedTopics: topics,
		LastEmailSent:  lastSent,
	}
}

func firstNonBlank(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
