package xmodem

// retryCounter bounds the number of failed attempts within one protocol phase.
//
// A fresh counter is used for the handshake, for every data block and for the
// end-of-transmission exchange, so a long transfer never runs out of retries
// because of errors spread across many blocks.
type retryCounter struct {
	count int
	limit int
}

func newRetryCounter(limit int) retryCounter {
	return retryCounter{limit: limit}
}

// fail records one failed attempt and reports whether the limit is now exceeded.
// With limit n, the (n+1)-th failure is the first one that returns true.
func (c *retryCounter) fail() bool {
	c.count++

	return c.count > c.limit
}

// reset starts a new phase.
func (c *retryCounter) reset() {
	c.count = 0
}

// cancelDetector implements the two-consecutive-CAN rule.
// The first CAN is remembered, a second CAN immediately after it is fatal, and
// any other byte forgets the first one.
type cancelDetector struct {
	pending bool
}

// observe feeds one received byte and reports whether it completes a CAN pair.
func (d *cancelDetector) observe(b byte) bool {
	if b != CAN {
		d.pending = false
		return false
	}

	if d.pending {
		return true
	}
	d.pending = true

	return false
}
