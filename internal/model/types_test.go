package model

import (
	"testing"
	"time"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestDuration(t *testing.T) {
	cases := []struct {
		name       string
		start, due *time.Time
		want       int
	}{
		{"two days", day("2024-01-01"), day("2024-01-03"), 2},
		{"same day clamps to one", day("2024-01-01"), day("2024-01-01"), 1},
		{"reversed clamps to one", day("2024-01-05"), day("2024-01-01"), 1},
		{"no start", nil, day("2024-01-03"), 0},
		{"no due", day("2024-01-01"), nil, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := Task{ID: "x", StartDate: tc.start, DueDate: tc.due}
			if got := task.Duration(); got != tc.want {
				t.Errorf("expected duration %d, got %d", tc.want, got)
			}
		})
	}
}

func TestDaysBetween_PartialDayRoundsUp(t *testing.T) {
	start := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	if got := DaysBetween(start, end); got != 2 {
		t.Errorf("expected 2 days for 25h span, got %d", got)
	}
}

func TestParseStatus(t *testing.T) {
	for _, s := range Statuses {
		got, err := ParseStatus(string(s))
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := ParseStatus("open"); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestParseRelationType(t *testing.T) {
	rt, err := ParseRelationType("depends")
	if err != nil || rt != RelationDepends {
		t.Errorf("ParseRelationType(depends) = %q, %v", rt, err)
	}
	if _, err := ParseRelationType("parent-child"); err == nil {
		t.Error("expected error for unknown relation type")
	}
}

func TestRelationType_Schedules(t *testing.T) {
	want := map[RelationType]bool{
		RelationBlocks:     true,
		RelationDepends:    true,
		RelationDuplicates: false,
		RelationRelates:    false,
	}
	for rt, expected := range want {
		if rt.Schedules() != expected {
			t.Errorf("%s.Schedules() = %v, want %v", rt, rt.Schedules(), expected)
		}
	}
}

func TestIndex_FirstOccurrenceWins(t *testing.T) {
	idx := Index([]Task{{ID: "a", Title: "first"}, {ID: "b"}, {ID: "a", Title: "second"}})
	if idx["a"] != 0 {
		t.Errorf("expected first occurrence of a at 0, got %d", idx["a"])
	}
	if idx["b"] != 1 {
		t.Errorf("expected b at 1, got %d", idx["b"])
	}
}
