package service

import "sync"

// WriteQueue serializes remote writes per visit so draft autosaves and
// completion writes for the same VisitRecord never race. Writes for
// different visits are fully independent.
type WriteQueue struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewWriteQueue creates a new WriteQueue
func NewWriteQueue() *WriteQueue {
	return &WriteQueue{
		locks: make(map[string]*sync.Mutex),
	}
}

func (q *WriteQueue) lockFor(visitID string) *sync.Mutex {
	q.mu.Lock()
	defer q.mu.Unlock()

	lock, ok := q.locks[visitID]
	if !ok {
		lock = &sync.Mutex{}
		q.locks[visitID] = lock
	}
	return lock
}

// Do runs fn while holding the visit's write lock. Writes submitted while
// another is in flight wait their turn in submission order.
func (q *WriteQueue) Do(visitID string, fn func() error) error {
	lock := q.lockFor(visitID)
	lock.Lock()
	defer lock.Unlock()
	return fn()
}

// Forget drops the lock for a visit once its workflow is dismissed.
func (q *WriteQueue) Forget(visitID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.locks, visitID)
}
