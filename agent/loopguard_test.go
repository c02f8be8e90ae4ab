package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoopGuard_Check(t *testing.T) {
	guard := LoopGuard{RepeatBound: 2, MaxHops: 10}

	tests := []struct {
		name      string
		history   []string
		candidate string
		tripped   bool
		contains  string
	}{
		{name: "first hop", history: nil, candidate: "a"},
		{name: "second in a row allowed", history: []string{"a"}, candidate: "a"},
		{name: "third in a row trips", history: []string{"a", "a"}, candidate: "a", tripped: true, contains: "3 times in a row"},
		{name: "repeat broken by other", history: []string{"a", "a", "b"}, candidate: "a"},
		{name: "two cycles allowed", history: []string{"a", "b", "a"}, candidate: "b"},
		{name: "third cycle trips", history: []string{"a", "b", "a", "b", "a"}, candidate: "b", tripped: true, contains: "cycle [a -> b]"},
		{name: "three-cycle allowed twice", history: []string{"a", "b", "c", "a", "b"}, candidate: "c"},
		{name: "three-cycle third time trips", history: []string{"a", "b", "c", "a", "b", "c", "a", "b"}, candidate: "c", tripped: true},
		{name: "hop ceiling", history: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j"}, candidate: "k", tripped: true, contains: "hop ceiling 10"},
		{name: "just under ceiling", history: []string{"a", "b", "c", "d", "e", "f", "g", "h", "i"}, candidate: "j"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tripped, detail := guard.Check(tt.history, tt.candidate)
			assert.Equal(t, tt.tripped, tripped, detail)
			if tt.contains != "" {
				assert.Contains(t, detail, tt.contains)
			}
		})
	}
}

func TestLoopGuard_DoesNotMutateHistory(t *testing.T) {
	history := make([]string, 2, 8)
	history[0], history[1] = "a", "b"
	LoopGuard{RepeatBound: 2, MaxHops: 10}.Check(history, "c")
	assert.Equal(t, []string{"a", "b"}, history)
	assert.Equal(t, "", history[:3][2])
}

func TestTrailingRepeats(t *testing.T) {
	assert.Equal(t, 0, trailingRepeats(nil, 1))
	assert.Equal(t, 3, trailingRepeats([]string{"x", "a", "a", "a"}, 1))
	assert.Equal(t, 2, trailingRepeats([]string{"a", "b", "a", "b"}, 2))
	assert.Equal(t, 1, trailingRepeats([]string{"a", "b", "c"}, 2))
	assert.Equal(t, 0, trailingRepeats([]string{"a"}, 2))
}
