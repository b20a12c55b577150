package link

import "math"

// DutyCycle holds the send-period / sleep-period scheduling parameters for
// one link's send thread (spec.md §4.3). All lengths are seconds; zero means
// "infinite" for SendPeriodLength and SendPeriodAmount, and "wake
// immediately" for SleepPeriodLength.
type DutyCycle struct {
	SendPeriodLength float64
	SendPeriodAmount int
	SleepPeriodLength float64
}

// dutyState is the mutable scheduler state, guarded by Link.mu alongside the
// send queue itself (the predicates below are evaluated under that lock).
type dutyState struct {
	cfg DutyCycle

	sleeping        bool
	nextChange      float64 // seconds since epoch; +Inf if never auto-sleeps
	nextSleepAmount int
}

func newDutyState(cfg DutyCycle) *dutyState {
	nextChange := math.Inf(1)
	if cfg.SendPeriodLength > 0 {
		nextChange = nowSeconds() + cfg.SendPeriodLength
	}
	return &dutyState{
		cfg:             cfg,
		nextChange:      nextChange,
		nextSleepAmount: cfg.SendPeriodAmount,
	}
}

// shouldSleep mirrors spec.md: ¬sleeping ∧ (now > next_change ∨
// (send_period_amount ≠ 0 ∧ next_sleep_amount ≤ 0)).
func (d *dutyState) shouldSleep(now float64) bool {
	if d.sleeping {
		return false
	}
	timeExpired := now > d.nextChange
	amountExhausted := d.cfg.SendPeriodAmount != 0 && d.nextSleepAmount <= 0
	return timeExpired || amountExhausted
}

// shouldWake mirrors spec.md: sleeping ∧ now > next_change.
func (d *dutyState) shouldWake(now float64) bool {
	return d.sleeping && now > d.nextChange
}

// enterSleep performs the step-3 transition of spec.md §4.3. Once this
// returns, d.nextChange is the scheduled wake-up (now + SleepPeriodLength);
// the caller scans the queue against that value to fail packages whose
// deadline falls before the wake-up.
func (d *dutyState) enterSleep(now float64) {
	d.sleeping = true
	d.nextChange = now + d.cfg.SleepPeriodLength
}

// wake performs the step-4 transition.
func (d *dutyState) wake(now float64) {
	d.sleeping = false
	if d.cfg.SendPeriodLength > 0 {
		d.nextChange = now + d.cfg.SendPeriodLength
	} else {
		d.nextChange = math.Inf(1)
	}
	d.nextSleepAmount = d.cfg.SendPeriodAmount
}
