package logging

import "strings"

// ProgressSampler decides which progress frames of one download are worth a
// log line: the first frame of every status, then one frame per percent
// bucket.
//
// yt-dlp fetches merged formats in several passes (video, then audio), each
// counting from 0 to 100 under the same "downloading" status. A drop of at
// least one bucket below the highest percent seen starts a new pass with
// fresh buckets, so the second pass is logged like the first.
type ProgressSampler struct {
	step   float64
	status string
	bucket int
	peak   float64
	pass   int
}

// NewProgressSampler returns a sampler with buckets of step percent (5 when
// step is not positive).
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step, bucket: -1, pass: 1}
}

// ShouldLog reports whether a frame with this percent and status should be
// logged. A negative percent means unknown. Status compares case-insensitively.
func (s *ProgressSampler) ShouldLog(percent float64, status string) bool {
	if s == nil {
		return true
	}
	emit := false
	if status = strings.ToLower(strings.TrimSpace(status)); status != "" && status != s.status {
		s.status = status
		s.bucket, s.peak = -1, 0
		emit = true
	}
	if percent < 0 {
		return emit
	}
	if s.bucket >= 0 && percent+s.step <= s.peak {
		s.pass++
		s.bucket, s.peak = -1, 0
	}
	s.peak = max(s.peak, percent)
	if bucket := int(min(percent, 100) / s.step); bucket > s.bucket {
		s.bucket = bucket
		emit = true
	}
	return emit
}

// Pass is the 1-based number of the current 0..100 run.
func (s *ProgressSampler) Pass() int {
	if s == nil {
		return 1
	}
	return s.pass
}

// Reset clears the sampler for a new job.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	*s = ProgressSampler{step: s.step, bucket: -1, pass: 1}
}
