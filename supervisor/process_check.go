package supervisor

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/ivan3bx/hamlaunch"
)

// ErrNoResponse is returned when a port does not open before the check is cancelled.
var ErrNoResponse = errors.New("no response or check failed")

// observerBuffer is the capacity of each observer channel.
const observerBuffer = 10

// StatusNotifier handles a registry for observers of supervisor state. This
// implementation can be accessed concurrently by multiple goroutines.
type StatusNotifier struct {
	sync.Mutex
	observers map[hamlaunch.State][]chan hamlaunch.Status
}

// Register will register a new observer for the given states.
// Returns a new channel which will receive a Status when the supervisor
// changes to any of the state(s) provided.
func (n *StatusNotifier) Register(states ...hamlaunch.State) <-chan hamlaunch.Status {
	n.Lock()
	defer n.Unlock()

	ch := make(chan hamlaunch.Status, observerBuffer)

	if n.observers == nil {
		n.observers = make(map[hamlaunch.State][]chan hamlaunch.Status)
	}

	for _, s := range states {
		n.observers[s] = append(n.observers[s], ch)
	}

	return ch
}

// Unregister will remove the given channel from the set of observers.
// The channel will be closed, and no further updates will be sent.
func (n *StatusNotifier) Unregister(ch <-chan hamlaunch.Status) {
	n.Lock()
	defer n.Unlock()

	var target chan hamlaunch.Status

	for key, v := range n.observers {
		kept := []chan hamlaunch.Status{}

		for _, item := range v {
			if item != ch {
				kept = append(kept, item)
			} else {
				target = item
			}
		}

		n.observers[key] = kept
	}

	if target != nil {
		close(target)
	}
}

// Notify sends st to every observer of st.State. Observers that are not
// keeping up miss the update rather than stall the caller.
func (n *StatusNotifier) Notify(st hamlaunch.Status) {
	n.Lock()
	defer n.Unlock()

	for _, ch := range n.observers[st.State] {
		select {
		case ch <- st:
		default:
			log.WithField("state", st.State).Warn("observer not keeping up, dropping status")
		}
	}
}

// checkPort polls addr until it accepts a TCP connection. Returns nil once
// it does, or ErrNoResponse if ctx ends first.
func checkPort(ctx context.Context, addr string, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if portOpen(addr) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ErrNoResponse
		case <-ticker.C:
		}
	}
}

func portOpen(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, time.Second)

	if err != nil || conn == nil {
		return false
	}

	conn.Close()
	return true
}
