package tracker

// LockCount reports how many per-medication locks are currently tracked.
func (t *Tracker) LockCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}
