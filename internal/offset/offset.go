// Package offset implements the symmetric clock-offset estimator used to
// compute a corrected one-way delay from four wall-clock timestamps taken on
// two unsynchronized clocks.
package offset

// Estimate is the result of a single four-timestamp computation. All fields
// are in seconds.
type Estimate struct {
	// Offset is the estimated offset of the remote (actuation) clock
	// relative to the local (measurement) clock.
	Offset float64
	// CorrectedT2 is the remote receipt time expressed on the local clock.
	CorrectedT2 float64
	// Delay is the corrected one-way delay. It may be negative when the
	// equal-transit-time assumption is violated; callers must not hide
	// such values.
	Delay float64
}

// Compute estimates the clock offset and the corrected one-way delay from
// four Unix-seconds timestamps:
//
//	t1: measurement peer send time (measurement clock)
//	t2: actuation peer receipt time (actuation clock)
//	t3: actuation peer reply-send time (actuation clock)
//	t4: relay receipt time of the acknowledgement (relay clock)
//
// Assuming equal forward and return transit times, the unknown offset of the
// actuation clock cancels out:
//
//	offset      = ((t2 - t1) + (t3 - t4)) / 2
//	correctedT2 = t2 - offset
//	delay       = correctedT2 - t1
//
// Compute never clamps or validates the result.
func Compute(t1, t2, t3, t4 float64) Estimate {
	off := ((t2 - t1) + (t3 - t4)) / 2
	corrected := t2 - off
	return Estimate{
		Offset:      off,
		CorrectedT2: corrected,
		Delay:       corrected - t1,
	}
}
