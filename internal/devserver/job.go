package devserver

import (
	"context"
	"encoding/json"
	"sync"
)

// job is an append-only log of progress frames. Late subscribers replay it
// from the start.
type job struct {
	id       string
	url      string
	formatID string

	mu       sync.Mutex
	frames   [][]byte
	finished bool
	changed  chan struct{}
}

func newJob(id, url, formatID string) *job {
	return &job{id: id, url: url, formatID: formatID, changed: make(chan struct{})}
}

func (j *job) append(frame map[string]any) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return
	}
	j.frames = append(j.frames, data)
	close(j.changed)
	j.changed = make(chan struct{})
}

func (j *job) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished {
		return
	}
	j.finished = true
	close(j.changed)
}

func (j *job) active() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return !j.finished
}

// next returns frame idx, waiting for it if needed. ok is false once the job
// is finished and every frame has been read.
func (j *job) next(ctx context.Context, idx int) (frame []byte, ok bool, err error) {
	for {
		j.mu.Lock()
		if idx < len(j.frames) {
			frame = j.frames[idx]
			j.mu.Unlock()
			return frame, true, nil
		}
		if j.finished {
			j.mu.Unlock()
			return nil, false, nil
		}
		changed := j.changed
		j.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
}
