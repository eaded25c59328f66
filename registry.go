package cubemars

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/notnil/cubemars/canbus"
)

// DialFunc opens a transport for a (driver, channel) pair. canbus.Dial is
// the default; tests and callers needing custom transports (or logging
// decorators) inject their own.
type DialFunc func(driver, channel string, bitrate int) (canbus.Bus, error)

// DefaultConnectTimeout bounds how long Open waits for the transport.
const DefaultConnectTimeout = 5 * time.Second

// Registry tracks one shared Bus per (driver, channel) pair, reference
// counted across the motors opened on it. The zero value is not usable;
// construct with NewRegistry. Configure the exported fields before the
// first Open.
type Registry struct {
	// Dial opens transports. Defaults to canbus.Dial.
	Dial DialFunc

	// ConnectTimeout bounds transport initialization. Defaults to
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// Logger is used by buses and motors that do not carry their own.
	Logger *slog.Logger

	mu    sync.Mutex
	buses map[busKey]*Bus
}

// NewRegistry creates a registry using the given dial function, or
// canbus.Dial when nil.
func NewRegistry(dial DialFunc) *Registry {
	if dial == nil {
		dial = canbus.Dial
	}
	return &Registry{
		Dial:           dial,
		ConnectTimeout: DefaultConnectTimeout,
		buses:          make(map[busKey]*Bus),
	}
}

// defaultRegistry backs the package-level Open.
var defaultRegistry = NewRegistry(nil)

func (r *Registry) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// acquire returns the existing Bus for key, or dials a new transport and
// starts its dispatch loop. The registry mutex is held across the dial so
// that concurrent acquires of the same key share one transport.
func (r *Registry) acquire(key busKey, bitrate int) (*Bus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.buses[key]; ok {
		b.refs++
		return b, nil
	}

	type dialResult struct {
		bus canbus.Bus
		err error
	}
	ch := make(chan dialResult, 1)
	go func() {
		bus, err := r.Dial(key.driver, key.channel, bitrate)
		ch <- dialResult{bus, err}
	}()

	timeout := r.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.err != nil {
			return nil, res.err
		}
		b := &Bus{
			key:       key,
			transport: res.bus,
			log:       r.logger(),
			refs:      1,
			motors:    make(map[uint8]*Motor),
			done:      make(chan struct{}),
		}
		go b.run()
		r.buses[key] = b
		return b, nil
	case <-timer.C:
		// The dial may still complete later; release its handle when it does.
		go func() {
			if res := <-ch; res.err == nil {
				res.bus.Close()
			}
		}()
		return nil, fmt.Errorf("%w: %s after %s", ErrConnectTimeout, key, timeout)
	}
}

// release drops one reference. At zero the bus is removed from the registry
// and its transport closed, which stops the dispatch loop.
func (r *Registry) release(b *Bus) {
	r.mu.Lock()
	b.refs--
	closing := b.refs <= 0
	if closing {
		delete(r.buses, b.key)
	}
	r.mu.Unlock()
	if closing {
		if err := b.Close(); err != nil {
			b.log.Warn("bus close failed", "bus", b.key.String(), "error", err)
		}
	}
}

// Config describes how to reach one motor.
type Config struct {
	Driver  string // canbus driver name: "socketcan" or "slcan"
	Channel string // network device or serial port
	Bitrate int    // bits per second; 0 leaves the driver default (1 Mbit/s)
	ID      uint8  // motor controller address (low byte of the arbitration id)
	Logger  *slog.Logger
}

// Open connects to a motor, sharing the transport with any other motors
// already open on the same (driver, channel) through this registry. It fails
// with ErrConnectTimeout if the transport does not come up in time, and with
// ErrAddressInUse if the address is already claimed on that bus.
func (r *Registry) Open(cfg Config) (*Motor, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = r.logger()
	}
	b, err := r.acquire(busKey{driver: cfg.Driver, channel: cfg.Channel}, cfg.Bitrate)
	if err != nil {
		return nil, err
	}
	m, err := newMotor(b, r, cfg.ID, logger)
	if err != nil {
		r.release(b)
		return nil, err
	}
	return m, nil
}

// Open connects to a motor through the default registry.
func Open(driver, channel string, id uint8) (*Motor, error) {
	return defaultRegistry.Open(Config{Driver: driver, Channel: channel, ID: id})
}

// OpenOn attaches a motor to an unmanaged Bus created with NewBus. Closing
// the motor detaches it but leaves the Bus open; the caller closes the Bus.
func OpenOn(b *Bus, id uint8) (*Motor, error) {
	return newMotor(b, nil, id, b.log)
}
