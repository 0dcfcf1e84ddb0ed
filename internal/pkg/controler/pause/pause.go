// Package pause implements a pub/sub pause controller. Long-running
// workers subscribe and, on a pause signal, block until resumed. The
// capacity watcher uses it to halt the pipeline when disk space runs low.
package pause

import (
	"sync"
	"sync/atomic"

	"github.com/internetarchive/Talos/internal/pkg/stats"
)

// ControlChans is one subscriber's pair of signal channels. PauseCh
// carries the pause reason; ResumeCh is read by Resume to unblock the
// subscriber.
type ControlChans struct {
	PauseCh  chan string
	ResumeCh chan struct{}
}

type controller struct {
	subscribers sync.Map // *ControlChans -> struct{}
	paused      atomic.Bool
	mu          sync.RWMutex
	message     string
}

var ctl = &controller{}

// Subscribe registers the caller as a pausable worker. A subscriber
// joining an already paused system gets the pause signal right away.
func Subscribe() *ControlChans {
	chans := &ControlChans{
		PauseCh:  make(chan string, 1), // buffered so Pause never blocks
		ResumeCh: make(chan struct{}),
	}
	ctl.subscribers.Store(chans, struct{}{})

	if ctl.paused.Load() {
		ctl.mu.RLock()
		msg := ctl.message
		ctl.mu.RUnlock()

		select {
		case chans.PauseCh <- msg:
		default:
		}
	}

	return chans
}

// Unsubscribe removes the subscriber and closes its channels.
func Unsubscribe(chans *ControlChans) {
	ctl.subscribers.Delete(chans)
	defer func() {
		// tolerate a double Unsubscribe
		recover()
	}()
	close(chans.PauseCh)
	close(chans.ResumeCh)
}

// Pause signals every subscriber to stop at its next checkpoint. The
// optional message names the reason, e.g. low disk space.
func Pause(message ...string) {
	if !ctl.paused.CompareAndSwap(false, true) {
		return
	}

	msg := "Paused"
	if len(message) > 0 {
		msg = message[0]
	}

	ctl.mu.Lock()
	ctl.message = msg
	ctl.mu.Unlock()

	ctl.subscribers.Range(func(key, _ any) bool {
		chans := key.(*ControlChans)
		select {
		case chans.PauseCh <- msg:
		default:
			// a pause signal is already pending for this subscriber
		}
		return true
	})
	stats.PausedSet()
}

// Resume unblocks every paused subscriber by reading from its ResumeCh.
func Resume() {
	var wg sync.WaitGroup
	ctl.subscribers.Range(func(key, _ any) bool {
		chans := key.(*ControlChans)
		wg.Add(1)
		go func(chans *ControlChans) {
			defer wg.Done()
			if _, ok := <-chans.ResumeCh; !ok {
				// closed: the subscriber unsubscribed while paused
				return
			}
		}(chans)
		return true
	})
	wg.Wait()

	if !ctl.paused.CompareAndSwap(true, false) {
		return
	}

	ctl.mu.Lock()
	ctl.message = ""
	ctl.mu.Unlock()

	stats.PausedUnset()
}

// IsPaused reports whether a pause is in effect.
func IsPaused() bool {
	return ctl.paused.Load()
}

// GetMessage returns the reason of the pause in effect, if any.
func GetMessage() string {
	ctl.mu.RLock()
	defer ctl.mu.RUnlock()
	return ctl.message
}
