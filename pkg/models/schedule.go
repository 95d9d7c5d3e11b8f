package models

import (
	"fmt"
	"strconv"
	"strings"
)

// WeekdayIndex maps schedule day tokens to time.Weekday values.
var WeekdayIndex = map[string]int{
	"sun": 0,
	"mon": 1,
	"tue": 2,
	"wed": 3,
	"thu": 4,
	"fri": 5,
	"sat": 6,
}

const (
	defaultTimeOfDay = "23:00"
	minThreads       = 1
	maxThreads       = 64
)

// NormalizeSchedule coerces a raw schedule into a valid one, falling back
// to existing values where the input is absent and to defaults where it is
// invalid. Weekly schedules always keep at least one day.
func NormalizeSchedule(raw, existing *Schedule) *Schedule {
	out := &Schedule{Cadence: CadenceDaily, TimeOfDay: defaultTimeOfDay}
	if existing != nil {
		out.Enabled = existing.Enabled
		out.Cadence = existing.Cadence
		out.TimeOfDay = existing.TimeOfDay
		out.Days = existing.Days
		out.Threads = existing.Threads
		out.LastRunAt = existing.LastRunAt
		out.LastRunStatus = existing.LastRunStatus
		out.LastError = existing.LastError
	}
	if raw != nil {
		out.Enabled = raw.Enabled
		if raw.Cadence != "" {
			out.Cadence = raw.Cadence
		}
		if raw.TimeOfDay != "" {
			out.TimeOfDay = raw.TimeOfDay
		}
		if raw.Days != nil {
			out.Days = raw.Days
		}
		if raw.Threads != 0 {
			out.Threads = raw.Threads
		}
	}

	if out.Cadence != CadenceDaily && out.Cadence != CadenceWeekly {
		out.Cadence = CadenceDaily
	}
	out.TimeOfDay = normalizeTimeOfDay(out.TimeOfDay)
	out.Days = normalizeDays(out.Days)
	if out.Cadence == CadenceWeekly && len(out.Days) == 0 {
		out.Days = []string{"mon"}
	}
	if out.Cadence == CadenceDaily {
		out.Days = nil
	}
	if out.Threads != 0 && (out.Threads < minThreads || out.Threads > maxThreads) {
		out.Threads = 0
	}
	return out
}

// TimeParts returns the hour and minute of the schedule's time-of-day.
func (s *Schedule) TimeParts() (hour, minute int) {
	t := normalizeTimeOfDay(s.TimeOfDay)
	parts := strings.SplitN(t, ":", 2)
	hour, _ = strconv.Atoi(parts[0])
	minute, _ = strconv.Atoi(parts[1])
	return hour, minute
}

func normalizeTimeOfDay(value string) string {
	parts := strings.SplitN(strings.TrimSpace(value), ":", 2)
	if len(parts) != 2 {
		return defaultTimeOfDay
	}
	hour, err1 := strconv.Atoi(parts[0])
	minute, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return defaultTimeOfDay
	}
	return fmt.Sprintf("%02d:%02d", hour, minute)
}

func normalizeDays(days []string) []string {
	out := make([]string, 0, len(days))
	seen := make(map[string]bool, len(days))
	for _, d := range days {
		token := strings.ToLower(strings.TrimSpace(d))
		if len(token) > 3 {
			token = token[:3]
		}
		if _, ok := WeekdayIndex[token]; !ok || seen[token] {
			continue
		}
		seen[token] = true
		out = append(out, token)
	}
	return out
}
