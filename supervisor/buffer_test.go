package supervisor

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOutputBuffer(t *testing.T) {
	tests := []struct {
		name     string
		maxLines int
		appends  []string
		expected []string
		evicted  uint64
	}{
		{
			name:     "within limit",
			maxLines: 5,
			appends:  []string{"a\nb\n", "c\n"},
			expected: []string{"a", "b", "c"},
		},
		{
			name:     "oldest lines are evicted",
			maxLines: 3,
			appends:  []string{"a\nb\nc\n", "d\n"},
			expected: []string{"b", "c", "d"},
			evicted:  1,
		},
		{
			name:     "single append larger than limit",
			maxLines: 2,
			appends:  []string{"1\n2\n3\n4\n5\n"},
			expected: []string{"4", "5"},
			evicted:  3,
		},
		{
			name:     "partial lines are continued",
			maxLines: 5,
			appends:  []string{"hel", "lo\nwor", "ld\n"},
			expected: []string{"hello", "world"},
		},
		{
			name:     "blank lines are kept",
			maxLines: 5,
			appends:  []string{"a\n", "\n", "b\n"},
			expected: []string{"a", "", "b"},
		},
		{
			name:     "empty append is ignored",
			maxLines: 5,
			appends:  []string{"", "a\n", ""},
			expected: []string{"a"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := NewOutputBuffer(tc.maxLines)

			for _, text := range tc.appends {
				b.Append(text)
			}

			assert.Equal(t, tc.expected, b.Lines())
			assert.Equal(t, tc.evicted, b.Evicted())
			assert.LessOrEqual(t, b.Len(), tc.maxLines)
		})
	}
}

func TestOutputBufferDefaults(t *testing.T) {
	assert.Equal(t, DefaultMaxLines, NewOutputBuffer(0).MaxLines())
	assert.Equal(t, DefaultMaxLines, NewOutputBuffer(-1).MaxLines())
	assert.Equal(t, 10, NewOutputBuffer(10).MaxLines())
}

func TestOutputBufferString(t *testing.T) {
	b := NewOutputBuffer(10)
	assert.Equal(t, "", b.String())

	b.Append("a\nb")
	assert.Equal(t, "a\nb", b.String())

	b.Append("\n")
	assert.Equal(t, "a\nb\n", b.String())
}

func TestOutputBufferClear(t *testing.T) {
	b := NewOutputBuffer(10)
	b.Append("a\nb\npartial")
	b.Clear()

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Lines())

	b.Append("c\n")
	assert.Equal(t, []string{"c"}, b.Lines(), "open line does not survive a clear")
}

// Retained content is always the most recent lines written, in order.
func TestOutputBufferSuffix(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))

	for _, limit := range []int{1, 3, 17, 100} {
		t.Run(fmt.Sprint(limit), func(t *testing.T) {
			b := NewOutputBuffer(limit)
			var all []string

			for i := 0; i < 500; i++ {
				n := rnd.Intn(8) + 1
				var sb strings.Builder

				for j := 0; j < n; j++ {
					line := fmt.Sprintf("%d.%d", i, j)
					all = append(all, line)
					sb.WriteString(line + "\n")
				}
				b.Append(sb.String())

				want := all
				if len(want) > limit {
					want = want[len(want)-limit:]
				}

				if !assert.Equal(t, want, b.Lines()) {
					return
				}
			}

			assert.Equal(t, uint64(len(all)-limit), b.Evicted())
		})
	}
}
