package transport

import "github.com/clusterd/clusterd/cmn/atomic"

// Stats tracks a per-session frame/byte counter triple (num frames, bytes
// offset, total size), scoped here to one Session.
type Stats struct {
	Num    atomic.Int64
	Offset atomic.Int64
	Size   atomic.Int64
}

func (s *Stats) observe(n int) {
	s.Num.Inc()
	s.Offset.Add(int64(n))
}
