package migration

import (
	"fmt"
	"sync"
)

// ProgressFunc receives human-readable status lines while a migration runs.
// Messages are for display only.
type ProgressFunc func(message string)

const (
	MessageNoData    = "No data found to migrate"
	MessageCompleted = "Migration completed"
)

func groupMessage(count int, label, unitName string) string {
	return fmt.Sprintf("Migrating %d %s for %s...", count, label, unitName)
}

// serialProgress guards a ProgressFunc so concurrent units never call it at the same time.
type serialProgress struct {
	mu sync.Mutex
	fn ProgressFunc
}

func newSerialProgress(fn ProgressFunc) *serialProgress {
	return &serialProgress{fn: fn}
}

func (p *serialProgress) emit(message string) {
	if p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn(message)
}
