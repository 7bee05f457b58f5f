package clitool

import "sync"

// Disposable is a revocable registration. Dispose runs its release at most once.
type Disposable struct {
	once    sync.Once
	release func()
}

// NewDisposable wraps a release function.
func NewDisposable(release func()) *Disposable {
	return &Disposable{release: release}
}

// Dispose releases the registration. Later calls do nothing.
func (d *Disposable) Dispose() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		if d.release != nil {
			d.release()
		}
	})
}
