package models

import (
	"reflect"
	"testing"
)

func TestNormalizeSchedule_Defaults(t *testing.T) {
	got := NormalizeSchedule(nil, nil)

	if got.Cadence != CadenceDaily {
		t.Errorf("cadence = %s, want daily", got.Cadence)
	}
	if got.TimeOfDay != "23:00" {
		t.Errorf("time of day = %s, want 23:00", got.TimeOfDay)
	}
	if got.Enabled {
		t.Error("default schedule should be disabled")
	}
}

func TestNormalizeSchedule_TimeOfDay(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"valid time kept", "03:30", "03:30"},
		{"single digits padded", "7:5", "07:05"},
		{"hour out of range falls back", "25:00", "23:00"},
		{"minute out of range falls back", "10:75", "23:00"},
		{"garbage falls back", "midnight", "23:00"},
		{"empty falls back", "", "23:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSchedule(&Schedule{TimeOfDay: tt.in}, nil)
			if got.TimeOfDay != tt.want {
				t.Errorf("time of day = %s, want %s", got.TimeOfDay, tt.want)
			}
		})
	}
}

func TestNormalizeSchedule_WeeklyDays(t *testing.T) {
	tests := []struct {
		name string
		in   *Schedule
		want []string
	}{
		{
			name: "weekly without days gets monday",
			in:   &Schedule{Cadence: CadenceWeekly},
			want: []string{"mon"},
		},
		{
			name: "full day names truncate to tokens",
			in:   &Schedule{Cadence: CadenceWeekly, Days: []string{"Monday", "THURSDAY"}},
			want: []string{"mon", "thu"},
		},
		{
			name: "unknown and duplicate tokens dropped",
			in:   &Schedule{Cadence: CadenceWeekly, Days: []string{"mon", "funday", "mon", "wed"}},
			want: []string{"mon", "wed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSchedule(tt.in, nil)
			if !reflect.DeepEqual(got.Days, tt.want) {
				t.Errorf("days = %v, want %v", got.Days, tt.want)
			}
		})
	}
}

func TestNormalizeSchedule_DailyClearsDays(t *testing.T) {
	got := NormalizeSchedule(&Schedule{Cadence: CadenceDaily, Days: []string{"mon", "wed"}}, nil)
	if got.Days != nil {
		t.Errorf("daily schedule kept days: %v", got.Days)
	}
}

func TestNormalizeSchedule_Threads(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero means engine default", 0, 0},
		{"valid value kept", 8, 8},
		{"over the cap resets", 100, 0},
		{"negative resets", -3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeSchedule(&Schedule{Threads: tt.in}, nil)
			if got.Threads != tt.want {
				t.Errorf("threads = %d, want %d", got.Threads, tt.want)
			}
		})
	}
}

func TestNormalizeSchedule_RawOverridesExisting(t *testing.T) {
	existing := &Schedule{
		Enabled:   true,
		Cadence:   CadenceWeekly,
		TimeOfDay: "04:00",
		Days:      []string{"sun"},
		Threads:   2,
	}
	raw := &Schedule{Enabled: true, TimeOfDay: "06:30"}

	got := NormalizeSchedule(raw, existing)

	if got.TimeOfDay != "06:30" {
		t.Errorf("time of day = %s, want 06:30", got.TimeOfDay)
	}
	if got.Cadence != CadenceWeekly {
		t.Errorf("cadence = %s, want existing weekly", got.Cadence)
	}
	if !reflect.DeepEqual(got.Days, []string{"sun"}) {
		t.Errorf("days = %v, want existing [sun]", got.Days)
	}
	if got.Threads != 2 {
		t.Errorf("threads = %d, want existing 2", got.Threads)
	}
}

func TestTimeParts(t *testing.T) {
	s := &Schedule{TimeOfDay: "06:45"}
	hour, minute := s.TimeParts()
	if hour != 6 || minute != 45 {
		t.Errorf("TimeParts() = %d:%d, want 6:45", hour, minute)
	}

	bad := &Schedule{TimeOfDay: "whenever"}
	hour, minute = bad.TimeParts()
	if hour != 23 || minute != 0 {
		t.Errorf("invalid time parts = %d:%d, want default 23:00", hour, minute)
	}
}
