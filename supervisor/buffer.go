package supervisor

import (
	"strings"
	"sync"

	"github.com/ivan3bx/hamlaunch"
)

// DefaultMaxLines is the retention used when none is configured.
const DefaultMaxLines = 5000

var _ hamlaunch.Sink = &OutputBuffer{}

// OutputBuffer retains the most recent lines of output, up to maxLines.
// Whole lines are evicted oldest first, once per Append.
type OutputBuffer struct {
	mu       sync.RWMutex
	lines    []string
	open     bool // last line has no terminating newline yet
	maxLines int
	evicted  uint64
}

// NewOutputBuffer returns an empty buffer. A maxLines <= 0 falls back to
// DefaultMaxLines.
func NewOutputBuffer(maxLines int) *OutputBuffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &OutputBuffer{maxLines: maxLines}
}

// Append adds text to the retained content. Text without a trailing
// newline leaves the last line open, and the next Append continues it.
func (b *OutputBuffer) Append(text string) {
	if text == "" {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	parts := strings.Split(text, "\n")

	if b.open {
		b.lines[len(b.lines)-1] += parts[0]
	} else {
		b.lines = append(b.lines, parts[0])
	}
	b.lines = append(b.lines, parts[1:]...)

	// a trailing newline leaves an empty final part, which is not a line
	if last := len(b.lines) - 1; len(parts) > 1 && b.lines[last] == "" {
		b.lines = b.lines[:last]
		b.open = false
	} else {
		b.open = true
	}

	if count := len(b.lines); count > b.maxLines {
		remove := count - b.maxLines

		// Reslicing keeps the backing array, whose capacity shrinks with
		// each trim; the next growing append copies only retained lines.
		b.lines = b.lines[remove:]
		b.evicted += uint64(remove)
	}
}

// Clear drops all retained content.
func (b *OutputBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lines = nil
	b.open = false
}

// Lines returns a copy of the retained lines, oldest first.
func (b *OutputBuffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]string, len(b.lines))
	copy(result, b.lines)
	return result
}

// String returns the retained content as text.
func (b *OutputBuffer) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.lines) == 0 {
		return ""
	}

	text := strings.Join(b.lines, "\n")
	if !b.open {
		text += "\n"
	}
	return text
}

// Len returns the number of retained lines.
func (b *OutputBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.lines)
}

// MaxLines is the retention limit.
func (b *OutputBuffer) MaxLines() int {
	return b.maxLines
}

// Evicted is the total number of lines dropped to honour the limit.
func (b *OutputBuffer) Evicted() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.evicted
}
