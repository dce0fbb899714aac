package digest_test

import (
	"strings"
	"testing"

	"github.com/studymate/daily-digest/internal/digest"
	"github.com/studymate/daily-digest/internal/model"
)

func fullStats() model.DailyStats {
	return model.DailyStats{
		Sessions:           4,
		StudyMinutes:       135,
		FlashcardsReviewed: 42,
		QuizzesCompleted:   17,
		NotesCreated:       9,
		CurrentStreak:      3,
	}
}

func render(t *testing.T, name string, stats model.DailyStats, topics []string) string {
	t.Helper()
	body, err := digest.RenderBody(name, stats, topics)
	if err != nil {
		t.Fatalf("RenderBody: %v", err)
	}
	return body
}

func TestRenderBody_NoTopicsHasNoBreakdown(t *testing.T) {
	body := render(t, "Ada", fullStats(), nil)

	if strings.Contains(body, "Activity Breakdown") {
		t.Error("breakdown section should be absent with no topics")
	}
	for _, label := range []string{"Quizzes Completed", "Flashcards Reviewed", "Notes Created"} {
		if strings.Contains(body, label) {
			t.Errorf("unexpected %q with no topics selected", label)
		}
	}
	if !strings.Contains(body, "Hi Ada!") {
		t.Error("missing greeting")
	}
	if !strings.Contains(body, "Pro Tip") {
		t.Error("missing tip content")
	}
}

func TestRenderBody_OnlySelectedTopicsAppear(t *testing.T) {
	body := render(t, "Ada", fullStats(), []string{digest.TopicQuizzes, digest.TopicNotes})

	if !strings.Contains(body, "Quizzes Completed: 17") {
		t.Error("selected quiz stat missing")
	}
	if !strings.Contains(body, "Notes Created: 9") {
		t.Error("selected notes stat missing")
	}
	if strings.Contains(body, "Flashcards Reviewed") {
		t.Error("non-selected flashcard stat rendered")
	}
}

func TestRenderBody_ZeroSelectedStatIsOmitted(t *testing.T) {
	stats := fullStats()
	stats.QuizzesCompleted = 0
	body := render(t, "Ada", stats, []string{digest.TopicQuizzes})

	if strings.Contains(body, "Quizzes Completed") {
		t.Error("zero-valued stat should not be itemised")
	}
	if strings.Contains(body, "Activity Breakdown") {
		t.Error("breakdown header should be absent when no line qualifies")
	}
}

func TestRenderBody_UnknownTopicsAreIgnored(t *testing.T) {
	body := render(t, "Ada", fullStats(), []string{"Astrology", "Mood"})
	if strings.Contains(body, "Activity Breakdown") {
		t.Error("unknown topics should not produce a breakdown")
	}
	if strings.Contains(body, "Astrology") {
		t.Error("unknown topic label should be omitted")
	}
}

func TestRenderBody_StudyTimeAndSessions(t *testing.T) {
	body := render(t, "Ada", fullStats(), nil)
	if !strings.Contains(body, "2h 15m") {
		t.Error("expected 135 minutes rendered as 2h 15m")
	}
}

func TestRenderBody_StreakPluralisation(t *testing.T) {
	stats := model.DailyStats{CurrentStreak: 1}
	if body := render(t, "Ada", stats, nil); !strings.Contains(body, "1 Day</strong>") {
		t.Error("expected singular Day for a 1-day streak")
	}

	stats.CurrentStreak = 5
	if body := render(t, "Ada", stats, nil); !strings.Contains(body, "5 Days</strong>") {
		t.Error("expected plural Days for a 5-day streak")
	}

	stats.CurrentStreak = 0
	if body := render(t, "Ada", stats, nil); strings.Contains(body, "Streak") && strings.Contains(body, "🔥") {
		t.Error("streak badge should be absent at zero")
	}
}

func TestRenderBody_EscapesName(t *testing.T) {
	body := render(t, `<script>alert(1)</script>`, model.DailyStats{}, nil)
	if strings.Contains(body, "<script>") {
		t.Error("name must be HTML-escaped")
	}
}

func TestRenderBody_EmptyNameFallsBack(t *testing.T) {
	body := render(t, "", model.DailyStats{}, nil)
	if !strings.Contains(body, "Hi Student!") {
		t.Error("expected default name in greeting")
	}
}

func TestBreakdown_FixedOrder(t *testing.T) {
	items := digest.Breakdown(fullStats(), []string{digest.TopicNotes, digest.TopicFlashcards, digest.TopicQuizzes})
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	want := []string{"Quizzes Completed", "Flashcards Reviewed", "Notes Created"}
	for i, w := range want {
		if items[i].Label != w {
			t.Errorf("item %d: got %q, want %q", i, items[i].Label, w)
		}
	}
}
