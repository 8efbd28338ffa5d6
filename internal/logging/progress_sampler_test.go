package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"zero", 0, 5},
		{"negative", -1, 5},
		{"custom", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.step != tt.wantSize {
				t.Errorf("step = %v, want %v", s.step, tt.wantSize)
			}
			if s.bucket != -1 || s.Pass() != 1 {
				t.Errorf("bucket = %d pass = %d, want -1 and 1", s.bucket, s.Pass())
			}
		})
	}
}

func TestProgressSamplerNilIsPermissive(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "downloading") {
		t.Error("nil sampler should always log")
	}
	s.Reset()
}

func TestProgressSamplerSequence(t *testing.T) {
	type step struct {
		percent float64
		status  string
		want    bool
	}
	tests := []struct {
		name   string
		bucket float64
		steps  []step
	}{
		{
			name:   "buckets",
			bucket: 5,
			steps: []step{
				{0, "downloading", true},
				{3, "downloading", false},
				{5, "downloading", true},
				{7, "downloading", false},
				{10, "downloading", true},
			},
		},
		{
			name:   "status change resets bucket",
			bucket: 5,
			steps: []step{
				{50, "downloading", true},
				{50, "Processing", true},
				{50, "processing", false},
				{55, " processing ", true},
			},
		},
		{
			name:   "unknown percent",
			bucket: 5,
			steps: []step{
				{-1, "starting", true},
				{-1, "starting", false},
			},
		},
		{
			name:   "caps at 100",
			bucket: 5,
			steps: []step{
				{95, "downloading", true},
				{100, "downloading", true},
				{105, "downloading", false},
			},
		},
		{
			name:   "small server regression stays quiet",
			bucket: 10,
			steps: []step{
				{40, "downloading", true},
				{35, "downloading", false},
				{41, "downloading", false},
				{50, "downloading", true},
			},
		},
		{
			name:   "wide buckets",
			bucket: 25,
			steps: []step{
				{0, "downloading", true},
				{20, "downloading", false},
				{25, "downloading", true},
				{49, "downloading", false},
				{50, "downloading", true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucket)
			for i, st := range tt.steps {
				if got := s.ShouldLog(st.percent, st.status); got != st.want {
					t.Fatalf("step %d (%v, %q): got %v want %v", i, st.percent, st.status, got, st.want)
				}
			}
		})
	}
}

func TestProgressSamplerLogsSecondDownloadPass(t *testing.T) {
	s := NewProgressSampler(10)
	steps := []struct {
		percent float64
		want    bool
		pass    int
	}{
		{40, true, 1},
		{100, true, 1},
		{0, true, 2},
		{5, false, 2},
		{10, true, 2},
		{100, true, 2},
	}
	for i, st := range steps {
		if got := s.ShouldLog(st.percent, "downloading"); got != st.want {
			t.Fatalf("step %d (%v%%): got %v want %v", i, st.percent, got, st.want)
		}
		if s.Pass() != st.pass {
			t.Fatalf("step %d: pass = %d, want %d", i, s.Pass(), st.pass)
		}
	}

	if !s.ShouldLog(100, "processing") || s.Pass() != 2 {
		t.Fatalf("status change should log without starting a pass, pass = %d", s.Pass())
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(5)
	s.ShouldLog(90, "downloading")
	s.ShouldLog(0, "downloading")
	s.Reset()
	if s.status != "" || s.bucket != -1 || s.Pass() != 1 {
		t.Fatalf("unexpected state after reset: %+v", s)
	}
	if !s.ShouldLog(50, "downloading") {
		t.Error("should log after reset")
	}
}
