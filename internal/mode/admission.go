package mode

import (
	"container/list"
	"sync"

	"github.com/MythologIQ/QoreLogic-sub000/internal/domain"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/errs"
	"github.com/MythologIQ/QoreLogic-sub000/pkg/ratelimit"
)

// Priority distinguishes interactive from batch admission slots.
type Priority string

const (
	PriorityInteractive Priority = "interactive"
	PriorityBatch       Priority = "batch"
)

// AdmitResult reports whether a request was admitted and any warning.
type AdmitResult struct {
	Admitted bool
	Warning  string // "SOFT_BACKPRESSURE" when attached
}

// Queue is the bounded admission queue of spec §4.6: capacity 50, with a
// reserved slice for L3 that is admitted even under backpressure. Admit
// either admits a request at once or rejects it; no request waits in the
// queue, so there is no service order. Interactive and batch slots are
// counted in separate lists, released from the back and the front
// respectively.
type Queue struct {
	mu       sync.Mutex
	capacity int
	soft     int
	interactive *list.List
	batch       *list.List
	l3Reserve   int // slots set aside, never yielded to L1/L2
	l3InUse     int
	limiter     *ratelimit.Limiter // paces general (non-L3) admission independent of slot capacity
}

// NewQueue builds a Queue sized by thresholds, reserving the hard 25%
// L3 compute fraction as admission slots; general (L1/L2) admission gets
// the remaining QueueCapacity minus reserve slots. General admission is
// additionally paced by a token-bucket limiter with rate and burst both
// set to QueueSoft per second: once the tokens are spent, Admit returns
// RATE_LIMITED even while slots are free. L3 admission bypasses the
// limiter.
func NewQueue(t Thresholds) *Queue {
	reserve := int(float64(t.QueueCapacity) * domain.L3ReserveFraction)
	if reserve < 1 {
		reserve = 1
	}
	return &Queue{
		capacity:    t.QueueCapacity,
		soft:        t.QueueSoft,
		interactive: list.New(),
		batch:       list.New(),
		l3Reserve:   reserve,
		limiter:     ratelimit.New(ratelimit.Config{RequestsPerSecond: float64(t.QueueSoft), Burst: t.QueueSoft}),
	}
}

// Depth returns the current total occupied slots (excluding the
// standing L3 reserve, which is only counted while in active use).
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.interactive.Len() + q.batch.Len() + q.l3InUse
}

// Admit attempts to admit one request of the given priority and risk
// grade. L3 requests draw from the reserved slice and are admitted up
// to the reserve size even at 100% general capacity.
func (q *Queue) Admit(priority Priority, risk domain.RiskGrade) (AdmitResult, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	total := q.interactive.Len() + q.batch.Len() + q.l3InUse

	if risk == domain.RiskL3 {
		if q.l3InUse >= q.l3Reserve {
			return AdmitResult{}, errs.QueueFull()
		}
		q.l3InUse++
		return AdmitResult{Admitted: true}, nil
	}

	generalCapacity := q.capacity - q.l3Reserve
	generalInUse := total - q.l3InUse
	if generalInUse >= generalCapacity {
		return AdmitResult{}, errs.QueueFull()
	}
	if !q.limiter.Allow() {
		return AdmitResult{}, errs.RateLimited()
	}

	if priority == PriorityInteractive {
		q.interactive.PushBack(struct{}{})
	} else {
		q.batch.PushBack(struct{}{})
	}

	result := AdmitResult{Admitted: true}
	if generalInUse+1 >= q.soft {
		result.Warning = "SOFT_BACKPRESSURE"
	}
	return result, nil
}

// Release frees one slot previously admitted for priority/risk.
func (q *Queue) Release(priority Priority, risk domain.RiskGrade) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if risk == domain.RiskL3 {
		if q.l3InUse > 0 {
			q.l3InUse--
		}
		return
	}
	if priority == PriorityInteractive {
		if e := q.interactive.Back(); e != nil { // LIFO: pop from the back
			q.interactive.Remove(e)
		}
	} else {
		if e := q.batch.Front(); e != nil { // FIFO: pop from the front
			q.batch.Remove(e)
		}
	}
}
