package utils

import (
	"github.com/gosimple/slug"
)

// NormalizeSlug creates a URL-friendly slug using the gosimple/slug library
// This handles all Unicode characters including accented and non-Latin names
func NormalizeSlug(text string) string {
	if text == "" {
		return ""
	}

	return slug.Make(text)
}

// GenerateSnapshotID derives an engine snapshot identifier from a job name.
// The engine groups runs into one incremental history by this key, so the
// caller must persist the result rather than re-deriving it after renames.
func GenerateSnapshotID(jobName string) string {
	if jobName == "" {
		jobName = "backup"
	}
	return NormalizeSlug(jobName)
}

// GenerateStorageName derives the engine-level storage alias for a job.
// A short ID suffix keeps aliases unique across jobs sharing one name.
func GenerateStorageName(jobID string) string {
	if len(jobID) > 8 {
		jobID = jobID[:8]
	}
	if jobID == "" {
		return "default"
	}
	return "s-" + jobID
}
