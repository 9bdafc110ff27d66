package testlog

import (
	"fmt"
	"strings"
	"sync"
	"testing"

	logs "github.com/danmuck/onionoffers/internal/logging"
	"github.com/rs/zerolog"
)

func Start(t *testing.T) {
	t.Helper()
	logs.ConfigureTests()
	logs.Infof("test=%s", t.Name())
}

// Line is one captured diagnostic.
type Line struct {
	Level zerolog.Level
	Text  string
}

// Recorder captures sink output for assertions. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	lines []Line
}

func (r *Recorder) Log(level zerolog.Level, format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	r.mu.Lock()
	r.lines = append(r.lines, Line{Level: level, Text: text})
	r.mu.Unlock()
	logs.Debugf("testlog.Recorder level=%s %s", level, text)
}

func (r *Recorder) Lines() []Line {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Line, len(r.lines))
	copy(out, r.lines)
	return out
}

// Count returns how many captured lines contain substr.
func (r *Recorder) Count(substr string) int {
	n := 0
	for _, line := range r.Lines() {
		if strings.Contains(line.Text, substr) {
			n++
		}
	}
	return n
}
