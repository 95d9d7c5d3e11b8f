package runner

import (
	"strings"
	"sync"
)

// TailBuffer is a bounded line accumulator with tail-biased retention:
// when full, the oldest lines are evicted. The engine emits its outcome
// summary near the end of output, so keeping the tail preserves everything
// the parser needs even on very chatty runs.
type TailBuffer struct {
	mu      sync.Mutex
	lines   []string
	start   int
	count   int
	evicted int
}

func NewTailBuffer(capacity int) *TailBuffer {
	if capacity <= 0 {
		capacity = 2000
	}
	return &TailBuffer{lines: make([]string, capacity)}
}

// Append adds one line, evicting the oldest when at capacity.
func (b *TailBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.count) % len(b.lines)
	b.lines[idx] = line
	if b.count < len(b.lines) {
		b.count++
		return
	}
	b.start = (b.start + 1) % len(b.lines)
	b.evicted++
}

// Contents joins the retained lines in emission order.
func (b *TailBuffer) Contents() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	var sb strings.Builder
	for i := 0; i < b.count; i++ {
		if i > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(b.lines[(b.start+i)%len(b.lines)])
	}
	return sb.String()
}

// LastLine returns the most recent non-empty line, or "".
func (b *TailBuffer) LastLine() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := b.count - 1; i >= 0; i-- {
		line := strings.TrimSpace(b.lines[(b.start+i)%len(b.lines)])
		if line != "" {
			return line
		}
	}
	return ""
}

// Evicted reports how many lines were dropped to honor the bound.
func (b *TailBuffer) Evicted() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.evicted
}
