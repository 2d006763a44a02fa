package eventloop

import "sync"

// Manual is a Poster whose tasks only run when Drain is called. Tests use it
// to step the pool deterministically.
type Manual struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
}

var _ Poster = (*Manual)(nil)

// NewManual creates an empty queue.
func NewManual() *Manual {
	return &Manual{}
}

// Post queues task.
func (m *Manual) Post(task func()) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return false
	}
	m.queue = append(m.queue, task)
	return true
}

// Drain runs queued tasks, including ones posted while draining, until the
// queue is empty. It returns how many ran.
func (m *Manual) Drain() int {
	n := 0
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return n
		}
		task := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		task()
		n++
	}
}

// Pending returns the number of queued tasks.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.queue)
}

// Stop rejects further posts.
func (m *Manual) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.queue = nil
	m.mu.Unlock()
}
