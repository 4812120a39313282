package initializer

// rescanTriggerCapacity bounds the trigger channel so that a burst of
// rescan requests collapses into a handful of pending rescans instead of
// blocking the caller or growing without bound.
const rescanTriggerCapacity = 5

// RescanTrigger is a bounded, non-blocking signal channel: any number of
// callers can request a rescan, up to rescanTriggerCapacity signals stay
// pending, and the background loop runs one pass per signal it drains.
type RescanTrigger struct {
	ch chan struct{}
}

func newRescanTrigger() *RescanTrigger {
	return &RescanTrigger{ch: make(chan struct{}, rescanTriggerCapacity)}
}

// Trigger requests a rescan. It never blocks: once the channel is full,
// further triggers are dropped with a warning, since a pending rescan
// already covers every change that prompted them.
func (t *RescanTrigger) Trigger() {
	select {
	case t.ch <- struct{}{}:
	default:
		log.Warn("rescan trigger buffer full, dropping signal", "capacity", rescanTriggerCapacity)
	}
}

// C exposes the trigger channel for a select loop to consume.
func (t *RescanTrigger) C() <-chan struct{} {
	return t.ch
}
