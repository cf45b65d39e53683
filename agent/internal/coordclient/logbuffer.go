package coordclient

import (
	"sync"

	"reconmc/shared/types"
)

// logBuffer accumulates one scan's log lines in memory so they can be
// flushed to the coordinator's /api/tasks/:id/logs endpoint in a single
// batched request once the scan finishes, rather than one request per
// line.
type logBuffer struct {
	mu    sync.Mutex
	lines []types.LogLine
}

// add matches scan.LogFunc's signature so it can be passed directly as
// the LogFunc a scan.Executor.Execute call writes to.
func (b *logBuffer) add(level, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, types.LogLine{Level: level, Message: message})
}

func (b *logBuffer) drain() []types.LogLine {
	b.mu.Lock()
	defer b.mu.Unlock()
	lines := b.lines
	b.lines = nil
	return lines
}
