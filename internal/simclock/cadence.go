package simclock

// Cadence converts a variable frame delta into a whole number of fixed steps.
type Cadence struct {
	step float64
	next float64
	init bool
}

func NewCadence(hz float64) *Cadence {
	if hz <= 0 {
		hz = 1
	}
	return &Cadence{step: 1 / hz}
}

func (c *Cadence) Step() float64 { return c.step }

// Due returns how many steps have elapsed by now. The first call always
// yields one step. Backlogs beyond maxSteps are dropped so a stalled loop
// does not spiral.
func (c *Cadence) Due(now float64, maxSteps int) int {
	if !c.init {
		c.init = true
		c.next = now + c.step
		return 1
	}
	n := 0
	for now >= c.next && (maxSteps <= 0 || n < maxSteps) {
		c.next += c.step
		n++
	}
	if now >= c.next {
		c.next = now + c.step
	}
	return n
}
