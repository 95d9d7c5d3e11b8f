package runner

import (
	"fmt"
	"strings"
	"testing"
)

func TestTailBuffer_UnderCapacity(t *testing.T) {
	b := NewTailBuffer(5)
	b.Append("one")
	b.Append("two")
	b.Append("three")

	if got := b.Contents(); got != "one\ntwo\nthree" {
		t.Errorf("Contents() = %q", got)
	}
	if got := b.LastLine(); got != "three" {
		t.Errorf("LastLine() = %q, want three", got)
	}
	if b.Evicted() != 0 {
		t.Errorf("Evicted() = %d, want 0", b.Evicted())
	}
}

func TestTailBuffer_EvictsOldest(t *testing.T) {
	b := NewTailBuffer(3)
	for i := 1; i <= 5; i++ {
		b.Append(fmt.Sprintf("line %d", i))
	}

	if got := b.Contents(); got != "line 3\nline 4\nline 5" {
		t.Errorf("Contents() = %q", got)
	}
	if b.Evicted() != 2 {
		t.Errorf("Evicted() = %d, want 2", b.Evicted())
	}
}

func TestTailBuffer_LastLineSkipsBlanks(t *testing.T) {
	b := NewTailBuffer(10)
	b.Append("real output")
	b.Append("")
	b.Append("   ")

	if got := b.LastLine(); got != "real output" {
		t.Errorf("LastLine() = %q, want real output", got)
	}

	empty := NewTailBuffer(10)
	if got := empty.LastLine(); got != "" {
		t.Errorf("empty LastLine() = %q, want empty", got)
	}
}

func TestTailBuffer_KeepsTailOnChattyOutput(t *testing.T) {
	b := NewTailBuffer(100)
	for i := 0; i < 10_000; i++ {
		b.Append(fmt.Sprintf("Packing chunk %d", i))
	}
	b.Append("Files: 12 total, 1 new, 0 changed, 0 removed")
	b.Append("New revision 4 created")

	contents := b.Contents()
	if !strings.Contains(contents, "New revision 4 created") {
		t.Error("summary line evicted from tail")
	}
	if !strings.Contains(contents, "Files: 12 total") {
		t.Error("stats line evicted from tail")
	}
}
