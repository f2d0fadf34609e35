package devicetransfer

import "sync"

// Bridge is the seam between a session and its consumer. States are
// delivered in transition order on one dispatcher goroutine. When an
// observer falls behind, queued transporting updates collapse to the newest
// one; every other state is always delivered.
type Bridge struct {
	mu        sync.Mutex
	state     TransferState
	queue     []TransferState
	observers []observer
	nextID    int
	cancel    func()
	cancelled bool
	running   bool

	wake chan struct{}
	done chan struct{}
}

type observer struct {
	id int
	fn func(TransferState)
}

// NewBridge returns a bridge reporting preparing. Its dispatcher starts
// with the first state change and exits after the terminal one.
func NewBridge() *Bridge {
	return &Bridge{
		state: Preparing(),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// State returns the most recent state.
func (b *Bridge) State() TransferState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// OnStateChanged registers fn for every later state change and returns a
// function that removes it.
func (b *Bridge) OnStateChanged(fn func(TransferState)) (unsubscribe func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextID++
	id := b.nextID
	b.observers = append(b.observers, observer{id: id, fn: fn})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, o := range b.observers {
			if o.id == id {
				b.observers = append(b.observers[:i:i], b.observers[i+1:]...)
				return
			}
		}
	}
}

// RequestCancel asks the session to close. It is safe to call from any
// goroutine, including an observer, and more than once.
func (b *Bridge) RequestCancel() {
	b.mu.Lock()
	if b.cancelled {
		b.mu.Unlock()
		return
	}
	b.cancelled = true
	cancel := b.cancel
	b.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Done is closed once a terminal state has been delivered to observers.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

// bind installs the session's cancel hook. A cancel requested before the
// hook existed runs it immediately.
func (b *Bridge) bind(cancel func()) {
	b.mu.Lock()
	b.cancel = cancel
	pending := b.cancelled
	b.mu.Unlock()
	if pending {
		cancel()
	}
}

func (b *Bridge) cancelRequested() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled
}

// publish queues s for delivery. It never blocks.
func (b *Bridge) publish(s TransferState) {
	b.mu.Lock()
	b.state = s
	b.queue = append(b.queue, s)
	if !b.running {
		b.running = true
		go b.dispatch()
	}
	b.mu.Unlock()

	select {
	case b.wake <- struct{}{}:
	default:
	}
}

func (b *Bridge) dispatch() {
	for range b.wake {
		b.mu.Lock()
		batch := coalesce(b.queue)
		b.queue = nil
		observers := append([]observer(nil), b.observers...)
		b.mu.Unlock()

		for _, s := range batch {
			for _, o := range observers {
				o.fn(s)
			}
			if s.Terminal() {
				close(b.done)
				return
			}
		}
	}
}

// coalesce drops every transporting state that is directly followed by
// another transporting state.
func coalesce(states []TransferState) []TransferState {
	out := states[:0:0]
	for i, s := range states {
		if s.kind == StateTransporting && i+1 < len(states) && states[i+1].kind == StateTransporting {
			continue
		}
		out = append(out, s)
	}
	return out
}
