package digest

import (
	"bytes"
	"fmt"
	"html/template"
	"slices"

	"github.com/studymate/daily-digest/internal/model"
)

// Subject is the subject line of every digest.
const Subject = "📚 Your Daily Study Insights"

// Topic labels the study app lets users pick. Labels outside this set are
// ignored by the renderer.
const (
	TopicQuizzes    = "Quiz Performance"
	TopicFlashcards = "Flashcard Progress"
	TopicNotes      = "Lecture Notes"
)

// BreakdownItem is one line of the itemised activity section.
type BreakdownItem struct {
	Label string
	Count int
}

type digestView struct {
	Name         string
	Hours        int
	Minutes      int
	Sessions     int
	Streak       int
	StreakPlural bool
	Breakdown    []BreakdownItem
}

// Breakdown returns the itemised lines for the selected topics, in a fixed
// order, keeping only non-zero counters.
func Breakdown(stats model.DailyStats, topics []string) []BreakdownItem {
	candidates := []struct {
		topic string
		item  BreakdownItem
	}{
		{TopicQuizzes, BreakdownItem{"Quizzes Completed", stats.QuizzesCompleted}},
		{TopicFlashcards, BreakdownItem{"Flashcards Reviewed", stats.FlashcardsReviewed}},
		{TopicNotes, BreakdownItem{"Notes Created", stats.NotesCreated}},
	}

	var out []BreakdownItem
	for _, c := range candidates {
		if c.item.Count > 0 && slices.Contains(topics, c.topic) {
			out = append(out, c.item)
		}
	}
	return out
}

// RenderBody builds the digest HTML. It performs no I/O.
func RenderBody(name string, stats model.DailyStats, topics []string) (string, error) {
	if name == "" {
		name = model.DefaultDisplayName
	}
	minutes := max(stats.StudyMinutes, 0)

	view := digestView{
		Name:         name,
		Hours:        minutes / 60,
		Minutes:      minutes % 60,
		Sessions:     stats.Sessions,
		Streak:       stats.CurrentStreak,
		StreakPlural: stats.CurrentStreak != 1,
		Breakdown:    Breakdown(stats, topics),
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("digest: render: %w", err)
	}
	return buf.String(), nil
}

// ─── HTML TEMPLATE ────────────────────────────────────────────────────────────

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, 'Segoe UI', Roboto, sans-serif;">
  <div style="background: #667eea; padding: 40px 20px;">
    <div style="max-width: 600px; margin: 0 auto; background: #ffffff; border-radius: 16px; overflow: hidden;">
      <div style="background: #764ba2; padding: 32px; text-align: center; color: #ffffff;">
        <h1 style="margin: 0 0 8px 0; font-size: 28px;">📚 Your Daily Study Insights</h1>
        <p style="margin: 0; font-size: 14px;">Your progress summary from StudyMate.AI</p>
      </div>
      <div style="padding: 32px;">
        <div style="font-size: 20px; font-weight: 600; color: #1f2937;">Hi {{.Name}}! 👋</div>
        <p style="color: #4b5563; font-size: 15px;">
          Great job staying consistent with your studies! Here's a summary of your learning activity:
        </p>
        <table width="100%" cellpadding="0" cellspacing="16">
          <tr>
            <td style="background: #f3f4f6; padding: 20px; border-radius: 12px; text-align: center;">
              <span style="display: block; font-size: 32px; font-weight: 700; color: #667eea;">{{.Hours}}h {{.Minutes}}m</span>
              <span style="font-size: 13px; color: #6b7280; text-transform: uppercase;">Study Time</span>
            </td>
            <td style="background: #f3f4f6; padding: 20px; border-radius: 12px; text-align: center;">
              <span style="display: block; font-size: 32px; font-weight: 700; color: #667eea;">{{.Sessions}}</span>
              <span style="font-size: 13px; color: #6b7280; text-transform: uppercase;">Sessions</span>
            </td>
          </tr>
        </table>
{{- if gt .Streak 0}}
        <div style="text-align: center; margin: 24px 0;">
          <div style="display: inline-block; background: #f59e0b; padding: 16px 32px; border-radius: 50px; color: #ffffff;">
            🔥 <strong style="font-size: 24px;">{{.Streak}} Day{{if .StreakPlural}}s{{end}}</strong> Streak
          </div>
          <p style="color: #6b7280; font-size: 13px;">Keep it up! Don't break the chain 💪</p>
        </div>
{{- end}}
{{- if .Breakdown}}
        <h3 style="color: #1f2937; font-size: 18px;">📊 Your Activity Breakdown</h3>
        <div style="background: #f9fafb; padding: 16px; border-radius: 8px; border-left: 4px solid #667eea;">
{{- range .Breakdown}}
          <div style="padding: 8px 0; color: #4b5563; font-size: 14px;">{{.Label}}: {{.Count}}</div>
{{- end}}
        </div>
{{- end}}
        <div style="background: #fef3c7; padding: 16px; border-radius: 8px; margin: 24px 0; border-left: 4px solid #f59e0b;">
          <strong style="display: block; color: #92400e;">💡 Pro Tip</strong>
          Spaced repetition is proven to improve long-term retention. Try reviewing your flashcards daily for best results!
        </div>
      </div>
      <div style="background: #f9fafb; padding: 24px; text-align: center; color: #6b7280; font-size: 12px;">
        <p>You're receiving this email because you've enabled daily insights in your StudyMate.AI account.</p>
        <p><a href="https://studymateai.info" style="color: #667eea;">Website</a> · <a href="mailto:studymateai.info@gmail.com" style="color: #667eea;">Support</a></p>
      </div>
    </div>
  </div>
</body>
</html>`))
