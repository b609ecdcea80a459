package report

import (
	"sync"

	"lasttrips/internal/analysis"
)

// Board holds the rows of the running evaluation for the status server.
// Safe for concurrent use.
type Board struct {
	mu      sync.RWMutex
	title   string
	target  analysis.Target
	rows    []analysis.Row
	running bool
	err     string
}

// NewBoard creates a Board for an evaluation that has just started.
func NewBoard(title string, target analysis.Target) *Board {
	return &Board{title: title, target: target, running: true}
}

// Add appends a completed row.
func (b *Board) Add(r analysis.Row) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rows = append(b.rows, r)
}

// Finish marks the evaluation done, recording err when it failed.
func (b *Board) Finish(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.running = false
	if err != nil {
		b.err = err.Error()
	}
}

// Page returns a snapshot of the board for rendering.
func (b *Board) Page() Page {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rows := make([]analysis.Row, len(b.rows))
	copy(rows, b.rows)
	return Page{
		Title:   b.title,
		Target:  b.target,
		Rows:    rows,
		Running: b.running,
		Err:     b.err,
	}
}
