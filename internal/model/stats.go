package model

import "time"

// DailyStats is one user's activity for one UTC calendar day. The zero value
// is the documented default for missing or unreadable data.
type DailyStats struct {
	Sessions           int
	StudyMinutes       int
	FlashcardsReviewed int
	QuizzesCompleted   int
	NotesCreated       int

	// CurrentStreak comes from the user profile, not the daily aggregate.
	CurrentStreak int
}

// StatsDocument is the raw daily_stats document. Two generations of the study
// app wrote different keys for the same counters; both are accepted.
type StatsDocument struct {
	Sessions      int `json:"sessions,omitempty" dynamodbav:"sessions,omitempty"`
	StudySessions int `json:"studySessions,omitempty" dynamodbav:"studySessions,omitempty"`

	StudyTime    int `json:"studyTime,omitempty" dynamodbav:"studyTime,omitempty"`
	TotalMinutes int `json:"totalMinutes,omitempty" dynamodbav:"totalMinutes,omitempty"`

	QuizzesCompleted int `json:"quizzesCompleted,omitempty" dynamodbav:"quizzesCompleted,omitempty"`
	QuizzesTaken     int `json:"quizzesTaken,omitempty" dynamodbav:"quizzesTaken,omitempty"`

	FlashcardsReviewed int `json:"flashcardsReviewed,omitempty" dynamodbav:"flashcardsReviewed,omitempty"`
	NotesCreated       int `json:"notesCreated,omitempty" dynamodbav:"notesCreated,omitempty"`
}

// ProfileDocument is the subset of the users document the digest reads.
type ProfileDocument struct {
	CurrentStreak int `json:"currentStreak,omitempty" dynamodbav:"currentStreak,omitempty"`
}

// Normalize merges a stats document and a profile into DailyStats. Either
// argument may be nil.
func Normalize(doc *StatsDocument, profile *ProfileDocument) DailyStats {
	var out DailyStats
	if doc != nil {
		out.Sessions = firstNonZero(doc.Sessions, doc.StudySessions)
		out.StudyMinutes = firstNonZero(doc.StudyTime, doc.TotalMinutes)
		out.QuizzesCompleted = firstNonZero(doc.QuizzesCompleted, doc.QuizzesTaken)
		out.FlashcardsReviewed = doc.FlashcardsReviewed
		out.NotesCreated = doc.NotesCreated
	}
	if profile != nil {
		out.CurrentStreak = profile.CurrentStreak
	}
	return out
}

// StatsDay returns the UTC calendar day the digest reports on: yesterday
// relative to now, truncated to midnight.
func StatsDay(now time.Time) time.Time {
	y, m, d := now.UTC().AddDate(0, 0, -1).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// StatsDateKey formats a day as the YYYY-MM-DD document key.
func StatsDateKey(day time.Time) string {
	return day.UTC().Format(time.DateOnly)
}

func firstNonZero(values ...int) int {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
