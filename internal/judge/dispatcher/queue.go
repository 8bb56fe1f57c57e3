package dispatcher

import "judgehost/internal/judge/job"

// jobQueue is a bounded FIFO that never blocks.
type jobQueue struct {
	ch chan job.Job
}

func newJobQueue(capacity int) *jobQueue {
	return &jobQueue{ch: make(chan job.Job, capacity)}
}

// TryPush reports false when the queue is full.
func (q *jobQueue) TryPush(j job.Job) bool {
	select {
	case q.ch <- j:
		return true
	default:
		return false
	}
}

// TryPop reports false when the queue is empty.
func (q *jobQueue) TryPop() (job.Job, bool) {
	select {
	case j := <-q.ch:
		return j, true
	default:
		return job.Job{}, false
	}
}

func (q *jobQueue) Len() int { return len(q.ch) }
func (q *jobQueue) Cap() int { return cap(q.ch) }
