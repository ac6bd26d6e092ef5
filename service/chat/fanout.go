package chat

type fanoutJob struct {
	conns   []*Client
	payload []byte
}

// Fanout decouples event resolution from socket writes with a small
// worker pool over a bounded queue. Workers enqueue per connection
// without blocking; a slow client just misses the event.
type Fanout struct {
	jobs chan fanoutJob
}

func NewFanout(workers, queue int) *Fanout {
	f := &Fanout{jobs: make(chan fanoutJob, queue)}
	for i := 0; i < workers; i++ {
		go func() {
			for job := range f.jobs {
				for _, c := range job.conns {
					c.Enqueue(job.payload)
				}
			}
		}()
	}
	return f
}

func (f *Fanout) Deliver(conns []*Client, payload []byte) {
	if len(conns) == 0 || len(payload) == 0 {
		return
	}
	f.jobs <- fanoutJob{conns: conns, payload: payload}
}

func (f *Fanout) Stop() { close(f.jobs) }
