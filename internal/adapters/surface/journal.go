// Package surface implements the map surface, drawing toolkit and camera as
// an in-memory model that journals every imperative operation. Browser
// clients replay the journal onto their MapLibre instance.
package surface

import (
	"sync"
	"time"

	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// DefaultCapacity is the number of operations a journal retains.
const DefaultCapacity = 4096

// Operation kinds.
const (
	OpAddSource         = "addSource"
	OpRemoveSource      = "removeSource"
	OpAddLayer          = "addLayer"
	OpRemoveLayer       = "removeLayer"
	OpSetPaintProperty  = "setPaintProperty"
	OpSetLayoutProperty = "setLayoutProperty"
	OpMoveLayer         = "moveLayer"
	OpSetCursor         = "setCursor"
	OpChangeMode        = "changeMode"
	OpDeleteAll         = "deleteAll"
	OpFlyTo             = "flyTo"
)

// Op is one journaled surface operation.
type Op struct {
	Seq      uint64               `json:"seq"`
	Kind     string               `json:"op"`
	ID       string               `json:"id,omitempty"`
	Before   string               `json:"before,omitempty"`
	Source   *output.SourceSpec   `json:"source,omitempty"`
	Layer    *output.LayerSpec    `json:"layer,omitempty"`
	Property string               `json:"property,omitempty"`
	Value    any                  `json:"value,omitempty"`
	Cursor   domain.Cursor        `json:"cursor,omitempty"`
	Mode     domain.DrawingMode   `json:"mode,omitempty"`
	Target   *domain.CameraTarget `json:"target,omitempty"`
	At       time.Time            `json:"at"`
}

// Batch is the answer to a replay request.
type Batch struct {
	Ops  []Op   `json:"ops"`
	Next uint64 `json:"next"`
	// Reset is set when operations after the requested sequence were
	// already evicted. The client must rebuild from a snapshot.
	Reset bool `json:"reset"`
}

// Journal is a bounded, append-only operation log.
type Journal struct {
	mu       sync.RWMutex
	ops      []Op
	capacity int
	next     uint64
	now      func() time.Time
}

// NewJournal creates a journal keeping the last capacity operations.
func NewJournal(capacity int) *Journal {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Journal{capacity: capacity, next: 1, now: time.Now}
}

// Append assigns the next sequence number to op and stores it.
func (j *Journal) Append(op Op) uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()

	op.Seq = j.next
	op.At = j.now()
	j.next++
	j.ops = append(j.ops, op)
	if over := len(j.ops) - j.capacity; over > 0 {
		j.ops = append(j.ops[:0:0], j.ops[over:]...)
	}
	return op.Seq
}

// Since returns the operations after seq, oldest first.
func (j *Journal) Since(seq uint64) Batch {
	j.mu.RLock()
	defer j.mu.RUnlock()

	b := Batch{Next: j.next - 1}
	if len(j.ops) == 0 || seq >= b.Next {
		return b
	}
	first := j.ops[0].Seq
	if seq+1 < first {
		b.Reset = true
		return b
	}
	tail := j.ops[seq+1-first:]
	b.Ops = make([]Op, len(tail))
	copy(b.Ops, tail)
	return b
}

// Last returns the sequence number of the newest operation, 0 when empty.
func (j *Journal) Last() uint64 {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.next - 1
}
