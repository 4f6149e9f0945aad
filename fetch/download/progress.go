package download

import (
	"io"
	"time"
)

// Progress is a snapshot of a running download. Total is -1 when the
// length is unknown.
type Progress struct {
	Transferred int64
	Total       int64
	Elapsed     time.Duration
	Done        bool
}

// Percent returns the completed share in [0, 100], or -1 when Total is
// unknown.
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return -1
	}

	return float64(p.Transferred) / float64(p.Total) * 100
}

// progressWriter counts bytes and reports at most once per interval, plus
// once when the expected total is reached.
type progressWriter struct {
	w        io.Writer
	report   func(Progress)
	interval time.Duration
	total    int64
	n        int64
	start    time.Time
	last     time.Time
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.n += int64(n)

	now := time.Now()
	done := pw.total >= 0 && pw.n == pw.total

	if done || now.Sub(pw.last) >= pw.interval {
		pw.last = now
		pw.report(Progress{Transferred: pw.n, Total: pw.total, Elapsed: now.Sub(pw.start), Done: done})
	}

	return n, err
}
