package transfer

import "math"

// Progress is a point-in-time view of one file transfer.
type Progress struct {
	SessionID   string
	Name        string
	Size        int64
	Transferred int64
	Percent     float64
}

// Done reports whether every declared byte has moved.
func (p Progress) Done() bool {
	return p.Transferred >= p.Size
}

// Percent returns min(100, done/total*100). It reaches 100 only once
// done >= total; an empty file is 100% as soon as it is announced.
func Percent(done, total int64) float64 {
	if done >= total {
		return 100
	}
	if done <= 0 {
		return 0
	}
	p := float64(done) / float64(total) * 100
	if p >= 100 {
		p = math.Nextafter(100, 0)
	}
	return p
}
