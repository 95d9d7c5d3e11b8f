package scheduler

import (
	"testing"
	"time"

	"github.com/duplistack/core/pkg/models"
)

func TestCronExpr(t *testing.T) {
	tests := []struct {
		name string
		in   *models.Schedule
		want string
	}{
		{
			name: "daily",
			in:   &models.Schedule{Cadence: models.CadenceDaily, TimeOfDay: "23:00"},
			want: "0 23 * * *",
		},
		{
			name: "daily off-hour",
			in:   &models.Schedule{Cadence: models.CadenceDaily, TimeOfDay: "06:45"},
			want: "45 6 * * *",
		},
		{
			name: "weekly",
			in:   &models.Schedule{Cadence: models.CadenceWeekly, TimeOfDay: "02:30", Days: []string{"mon", "thu"}},
			want: "30 2 * * mon,thu",
		},
		{
			name: "weekly without days behaves like daily",
			in:   &models.Schedule{Cadence: models.CadenceWeekly, TimeOfDay: "12:00"},
			want: "0 12 * * *",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CronExpr(tt.in); got != tt.want {
				t.Errorf("CronExpr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNextDue_Daily(t *testing.T) {
	sched := &models.Schedule{Cadence: models.CadenceDaily, TimeOfDay: "23:00"}

	// Before today's slot: due later today.
	after := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	next, err := NextDue(sched, after)
	if err != nil {
		t.Fatalf("NextDue() error: %v", err)
	}
	want := time.Date(2026, 3, 10, 23, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}

	// Past today's slot: due tomorrow.
	after = time.Date(2026, 3, 10, 23, 0, 1, 0, time.UTC)
	next, err = NextDue(sched, after)
	if err != nil {
		t.Fatalf("NextDue() error: %v", err)
	}
	want = time.Date(2026, 3, 11, 23, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextDue_NoDriftAfterLongRun(t *testing.T) {
	sched := &models.Schedule{Cadence: models.CadenceDaily, TimeOfDay: "23:00"}

	// A 90-minute run of the 23:00 backup finishes at 00:30; the next slot
	// is tonight at 23:00, not 00:30 tomorrow.
	finished := time.Date(2026, 3, 11, 0, 30, 0, 0, time.UTC)
	next, err := NextDue(sched, finished)
	if err != nil {
		t.Fatalf("NextDue() error: %v", err)
	}
	want := time.Date(2026, 3, 11, 23, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
}

func TestNextDue_Weekly(t *testing.T) {
	sched := &models.Schedule{
		Cadence:   models.CadenceWeekly,
		TimeOfDay: "04:00",
		Days:      []string{"mon", "fri"},
	}

	// 2026-03-10 is a Tuesday; the next slot is Friday 04:00.
	after := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	next, err := NextDue(sched, after)
	if err != nil {
		t.Fatalf("NextDue() error: %v", err)
	}
	want := time.Date(2026, 3, 13, 4, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Errorf("next = %v, want %v", next, want)
	}
	if next.Weekday() != time.Friday {
		t.Errorf("next lands on %v, want Friday", next.Weekday())
	}

	// From Friday afternoon the following slot is Monday.
	next, err = NextDue(sched, want.Add(10*time.Hour))
	if err != nil {
		t.Fatalf("NextDue() error: %v", err)
	}
	if next.Weekday() != time.Monday {
		t.Errorf("next lands on %v, want Monday", next.Weekday())
	}
}
