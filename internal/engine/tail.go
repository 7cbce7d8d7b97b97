package engine

import "fmt"

// tail retains the most recent output lines of a single attempt in a ring.
type tail struct {
	max   int
	lines []string
	next  int
}

func newTail(max int) *tail {
	return &tail{max: max}
}

func (t *tail) Add(source, line string) {
	if t.max <= 0 {
		return
	}
	formatted := fmt.Sprintf("[%s]\t%s", source, line)
	if len(t.lines) < t.max {
		t.lines = append(t.lines, formatted)
		return
	}
	t.lines[t.next] = formatted
	t.next = (t.next + 1) % t.max
}

// Lines returns the retained lines oldest first.
func (t *tail) Lines() []string {
	if len(t.lines) == 0 {
		return nil
	}
	out := make([]string, 0, len(t.lines))
	out = append(out, t.lines[t.next:]...)
	out = append(out, t.lines[:t.next]...)
	return out
}
