package cubemars

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/notnil/cubemars/canbus"
)

// closeWait bounds how long teardown waits for background goroutines.
const closeWait = 2 * time.Second

// busKey identifies one physical bus for sharing purposes.
type busKey struct {
	driver  string
	channel string
}

func (k busKey) String() string {
	return k.driver + ":" + k.channel
}

// Bus owns one CAN transport and the single goroutine that reads from it,
// dispatching inbound frames to registered motors by address. Motors opened
// through a Registry share a Bus per (driver, channel); NewBus creates an
// unmanaged Bus over a caller-supplied transport.
type Bus struct {
	key       busKey
	transport canbus.Bus
	log       *slog.Logger

	// refs is guarded by the owning registry's mutex; it stays zero for
	// unmanaged buses.
	refs int

	mu     sync.Mutex
	motors map[uint8]*Motor

	done      chan struct{}
	closeOnce sync.Once
}

// NewBus wraps an already-open transport and starts its dispatch loop. The
// Bus takes ownership of the transport; it is closed by Bus.Close. Motors are
// attached with OpenOn and are exempt from reference counting: closing them
// does not close the Bus.
func NewBus(transport canbus.Bus, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		key:       busKey{driver: "unmanaged"},
		transport: transport,
		log:       logger,
		motors:    make(map[uint8]*Motor),
		done:      make(chan struct{}),
	}
	go b.run()
	return b
}

// run is the sole reader of the transport. It exits when Receive fails,
// which happens once the transport is closed.
func (b *Bus) run() {
	defer close(b.done)
	for {
		f, err := b.transport.Receive()
		if err != nil {
			return
		}
		b.mu.Lock()
		m := b.motors[frameAddress(f)]
		b.mu.Unlock()
		if m == nil {
			// No session for this address; drop silently.
			continue
		}
		m.processInbound(f)
	}
}

// send hands one outbound frame to the transport. Safe for concurrent use by
// any number of motors and their control loops.
func (b *Bus) send(f canbus.Frame) error {
	return b.transport.Send(f)
}

func (b *Bus) register(m *Motor) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.motors[m.id]; ok {
		return fmt.Errorf("%w: motor %d on %s", ErrAddressInUse, m.id, b.key)
	}
	b.motors[m.id] = m
	return nil
}

func (b *Bus) unregister(id uint8) {
	b.mu.Lock()
	delete(b.motors, id)
	b.mu.Unlock()
}

// Close stops the dispatch loop and closes the transport. For managed buses
// this is invoked by the registry when the last motor is released.
func (b *Bus) Close() error {
	var err error
	b.closeOnce.Do(func() {
		err = b.transport.Close()
		select {
		case <-b.done:
		case <-time.After(closeWait):
			b.log.Warn("dispatch loop did not stop in time", "bus", b.key.String())
		}
	})
	return err
}
