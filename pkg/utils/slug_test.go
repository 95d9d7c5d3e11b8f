package utils

import "testing"

func TestNormalizeSlug(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple name", "Photo Archive", "photo-archive"},
		{"accented characters", "Dépôt Média", "depot-media"},
		{"empty input", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeSlug(tt.in); got != tt.want {
				t.Errorf("NormalizeSlug(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGenerateSnapshotID(t *testing.T) {
	if got := GenerateSnapshotID("Family Photos 2026"); got != "family-photos-2026" {
		t.Errorf("GenerateSnapshotID() = %q", got)
	}
	if got := GenerateSnapshotID(""); got != "backup" {
		t.Errorf("GenerateSnapshotID(empty) = %q, want backup", got)
	}
}

func TestGenerateStorageName(t *testing.T) {
	if got := GenerateStorageName("0d9c1f4e-aaaa-bbbb-cccc-000000000000"); got != "s-0d9c1f4e" {
		t.Errorf("GenerateStorageName() = %q", got)
	}
	if got := GenerateStorageName(""); got != "default" {
		t.Errorf("GenerateStorageName(empty) = %q, want default", got)
	}
}
