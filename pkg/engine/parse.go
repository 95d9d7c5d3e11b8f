package engine

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/duplistack/core/pkg/models"
)

// Line formats emitted by the engine. These are enrichment only: the exit
// code decides success or failure, text patterns never flip that verdict
// (engine localization or version drift must not invent false outcomes).
var (
	revisionCreatedRe = regexp.MustCompile(`(?i)new revision (\d+) created`)
	revisionBackupRe  = regexp.MustCompile(`(?i)backup .* at revision (\d+) completed`)
	filesStatsRe      = regexp.MustCompile(`(?i)^files:\s*(\d+)\s+total`)
	newCountRe        = regexp.MustCompile(`(?i)(\d+)\s+new\b`)
	changedCountRe    = regexp.MustCompile(`(?i)(\d+)\s+changed\b`)
	removedCountRe    = regexp.MustCompile(`(?i)(\d+)\s+(?:removed|deleted)\b`)
	snapshotListRe    = regexp.MustCompile(`(?i)snapshot\s+(\S+)\s+revision\s+(\d+)\s+created\s+at\s+(.+)`)

	errorPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)permission denied`),
		regexp.MustCompile(`(?i)storage .* (?:unreachable|not found)`),
		regexp.MustCompile(`(?i)failed to (?:connect|upload|download|create)`),
		regexp.MustCompile(`(?i)^error:`),
		regexp.MustCompile(`(?i)connection refused`),
	}
)

// Sample markers: when verbose, the engine prefixes per-file change lines
// the way a diff does.
const (
	newSamplePrefix     = "+ "
	changedSamplePrefix = "* "
	deletedSamplePrefix = "- "
)

// Parse turns the accumulated output of one finished run into a RunOutcome.
// Pure and deterministic: identical input yields an identical outcome, with
// no hidden state. exitCode is ground truth for success; parsing only
// extracts revision numbers, change tallies and a human-readable message.
//
// Fallbacks, in order: structured stats lines when present; otherwise a
// generic message on zero exit; otherwise failure with the last non-empty
// line. Empty output with a zero exit is success with an empty summary —
// absence of output is not evidence of failure.
func Parse(output string, exitCode int) models.RunOutcome {
	outcome := models.RunOutcome{
		Status:   models.RunStatusSuccess,
		ExitCode: exitCode,
	}
	if exitCode != 0 {
		outcome.Status = models.RunStatusError
	}

	lines := strings.Split(output, "\n")
	lastNonEmpty := ""
	sawStats := false
	var firstError string

	for _, raw := range lines {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)
		if trimmed != "" {
			lastNonEmpty = trimmed
		}

		if m := revisionCreatedRe.FindStringSubmatch(trimmed); m != nil {
			rev, _ := strconv.Atoi(m[1])
			outcome.CreatedRevision = &rev
		} else if m := revisionBackupRe.FindStringSubmatch(trimmed); m != nil && outcome.CreatedRevision == nil {
			rev, _ := strconv.Atoi(m[1])
			outcome.CreatedRevision = &rev
		}

		if m := filesStatsRe.FindStringSubmatch(trimmed); m != nil {
			total, _ := strconv.Atoi(m[1])
			outcome.TotalFiles = &total
			sawStats = true
			if c := newCountRe.FindStringSubmatch(trimmed); c != nil {
				outcome.New, _ = strconv.Atoi(c[1])
			}
			if c := changedCountRe.FindStringSubmatch(trimmed); c != nil {
				outcome.Changed, _ = strconv.Atoi(c[1])
			}
			if c := removedCountRe.FindStringSubmatch(trimmed); c != nil {
				outcome.Deleted, _ = strconv.Atoi(c[1])
			}
		}

		switch {
		case strings.HasPrefix(line, newSamplePrefix):
			outcome.Samples.New = appendSample(outcome.Samples.New, line[len(newSamplePrefix):])
		case strings.HasPrefix(line, changedSamplePrefix):
			outcome.Samples.Changed = appendSample(outcome.Samples.Changed, line[len(changedSamplePrefix):])
		case strings.HasPrefix(line, deletedSamplePrefix):
			outcome.Samples.Deleted = appendSample(outcome.Samples.Deleted, line[len(deletedSamplePrefix):])
		}

		if firstError == "" {
			for _, pat := range errorPatterns {
				if pat.MatchString(trimmed) {
					firstError = trimmed
					break
				}
			}
		}
	}

	// "No file has changed" runs still create a revision; the zero counts
	// above are already correct for them.
	switch {
	case outcome.Status == models.RunStatusError:
		if firstError != "" {
			outcome.Message = firstError
		} else if lastNonEmpty != "" {
			outcome.Message = lastNonEmpty
		} else {
			outcome.Message = "backup engine exited with code " + strconv.Itoa(exitCode)
		}
	case !sawStats && outcome.CreatedRevision == nil:
		if strings.TrimSpace(output) == "" {
			outcome.Message = ""
		} else {
			outcome.Message = "Backup completed"
		}
	}

	return outcome
}

func appendSample(samples []string, path string) []string {
	path = strings.TrimSpace(path)
	if path == "" || len(samples) >= models.SampleLimit {
		return samples
	}
	return append(samples, path)
}

// ParseSnapshots extracts revision records from the engine's list output.
// Lines look like: "Snapshot media revision 7 created at 2026-01-02 23:00".
func ParseSnapshots(output string) []models.Snapshot {
	var snapshots []models.Snapshot
	for _, line := range strings.Split(output, "\n") {
		m := snapshotListRe.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil {
			continue
		}
		rev, err := strconv.Atoi(m[2])
		if err != nil {
			continue
		}
		snapshots = append(snapshots, models.Snapshot{
			SnapshotID: m[1],
			Revision:   rev,
			CreatedAt:  strings.TrimSpace(m[3]),
		})
	}
	return snapshots
}

// LatestRevision returns the highest revision recorded for a snapshot ID,
// or nil when the listing holds none.
func LatestRevision(snapshots []models.Snapshot, snapshotID string) *int {
	var latest *int
	for _, s := range snapshots {
		if s.SnapshotID != snapshotID {
			continue
		}
		if latest == nil || s.Revision > *latest {
			rev := s.Revision
			latest = &rev
		}
	}
	return latest
}
