package attendance

import "time"

// =============================================================================
// STATE MACHINE
// =============================================================================
//
//   not-started --clock-in--> clocked-in --lunch-out--> lunch-break
//        ^                        |                          |
//        |                    clock-out                  lunch-in
//        |                        v                          v
//        +--clock-in (re-open)-- clocked-out <--clock-out-- lunch-return
//
// A new calendar day starts from a fresh not-started record because the
// record key changes with the date.

// Transition applies action at time at to r and returns the updated copy.
// On rejection r is returned unchanged together with a *PunchError.
// Totals are not touched here; see Calculate.
func Transition(r Record, action Action, at time.Time) (Record, error) {
	switch action {
	case ActionClockIn:
		if r.Status.MidShift() {
			return r, reject(ErrDuplicatePunch, action, r.Status, "shift already open, clock out first")
		}
		next := r
		next.ClockIn = timePtr(at)
		next.LunchOut, next.LunchIn, next.ClockOut = nil, nil, nil
		next.Status = StatusClockedIn
		return next, nil

	case ActionLunchOut:
		if r.ClockIn == nil {
			return r, reject(ErrOutOfOrderPunch, action, r.Status, "clock in before leaving for lunch")
		}
		if r.LunchOut != nil {
			return r, reject(ErrDuplicatePunch, action, r.Status, "lunch-out already recorded today")
		}
		if r.Status != StatusClockedIn {
			return r, reject(ErrOutOfOrderPunch, action, r.Status, "shift already closed")
		}
		next := r
		next.LunchOut = timePtr(notBefore(at, r.ClockIn))
		next.Status = StatusLunchBreak
		return next, nil

	case ActionLunchIn:
		if r.LunchOut == nil {
			return r, reject(ErrOutOfOrderPunch, action, r.Status, "record lunch-out before returning from lunch")
		}
		if r.LunchIn != nil {
			return r, reject(ErrDuplicatePunch, action, r.Status, "lunch return already recorded today")
		}
		if r.Status != StatusLunchBreak {
			return r, reject(ErrOutOfOrderPunch, action, r.Status, "no lunch break in progress")
		}
		next := r
		next.LunchIn = timePtr(notBefore(at, r.LunchOut))
		next.Status = StatusLunchReturn
		return next, nil

	case ActionClockOut:
		if r.ClockIn == nil {
			return r, reject(ErrOutOfOrderPunch, action, r.Status, "clock in before clocking out")
		}
		if r.LunchOut != nil && r.LunchIn == nil {
			return r, reject(ErrIncompleteLunch, action, r.Status, "record the lunch return before clocking out")
		}
		if r.Status == StatusClockedOut {
			return r, reject(ErrDuplicatePunch, action, r.Status, "shift already closed")
		}
		prev := r.ClockIn
		if r.LunchIn != nil {
			prev = r.LunchIn
		}
		next := r
		next.ClockOut = timePtr(notBefore(at, prev))
		next.Status = StatusClockedOut
		return next, nil
	}

	return r, reject(ErrOutOfOrderPunch, action, r.Status, "unknown action")
}

// notBefore raises t to prev so a skewed clock cannot break punch ordering.
func notBefore(t time.Time, prev *time.Time) time.Time {
	if prev != nil && t.Before(*prev) {
		return *prev
	}
	return t
}

// ValidatePunches checks the ordering invariant of a hand-edited record.
func ValidatePunches(r Record) error {
	if r.ClockIn == nil && (r.LunchOut != nil || r.LunchIn != nil || r.ClockOut != nil) {
		return reject(ErrOutOfOrderPunch, ActionClockIn, r.Status, "punches require a clock-in")
	}
	if r.LunchIn != nil && r.LunchOut == nil {
		return reject(ErrOutOfOrderPunch, ActionLunchIn, r.Status, "lunch return requires a lunch-out")
	}
	if r.ClockOut != nil && r.LunchOut != nil && r.LunchIn == nil {
		return reject(ErrIncompleteLunch, ActionClockOut, r.Status, "lunch break must be closed before clock-out")
	}

	ordered := []*time.Time{r.ClockIn, r.LunchOut, r.LunchIn, r.ClockOut}
	var last *time.Time
	for _, p := range ordered {
		if p == nil {
			continue
		}
		if last != nil && p.Before(*last) {
			return reject(ErrOutOfOrderPunch, ActionClockOut, r.Status, "punch times must be in chronological order")
		}
		last = p
	}
	return nil
}
