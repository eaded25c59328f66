package cubemars

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/notnil/cubemars/canbus"
)

// controlInterval is the cadence at which the stored setpoint is re-sent.
// The controllers fall back to a safe state if commands stop arriving.
const controlInterval = 10 * time.Millisecond

// Motor is a blocking handle for one motor controller on a shared bus.
// All methods are safe for concurrent use.
type Motor struct {
	id  uint8
	bus *Bus
	reg *Registry // nil for motors attached via OpenOn
	log *slog.Logger

	cmdMu sync.Mutex
	cmd   *Command // current setpoint; nil means send nothing

	fbMu sync.RWMutex
	fb   Feedback

	closed    atomic.Bool
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

func newMotor(b *Bus, r *Registry, id uint8, logger *slog.Logger) (*Motor, error) {
	m := &Motor{
		id:   id,
		bus:  b,
		reg:  r,
		log:  logger,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if err := b.register(m); err != nil {
		return nil, err
	}
	go m.run()
	return m, nil
}

// ID returns the motor controller address.
func (m *Motor) ID() uint8 {
	return m.id
}

// SetDuty commands the duty cycle loop. The nominal range is -1..1; values
// are passed through to the controller unclamped.
func (m *Motor) SetDuty(duty float64) error {
	return m.command(Command{Kind: KindSetDuty, Value: duty})
}

// SetCurrent commands the current loop reference in amperes.
func (m *Motor) SetCurrent(amps float64) error {
	return m.command(Command{Kind: KindSetCurrent, Value: amps})
}

// SetBrakeCurrent commands the brake current in amperes.
func (m *Motor) SetBrakeCurrent(amps float64) error {
	return m.command(Command{Kind: KindSetCurrentBrake, Value: amps})
}

// SetRPM commands the velocity loop in electrical RPM.
func (m *Motor) SetRPM(rpm float64) error {
	return m.command(Command{Kind: KindSetRPM, Value: rpm})
}

// SetPosition commands the position loop in degrees with the default speed
// and acceleration limits.
func (m *Motor) SetPosition(degrees float64) error {
	return m.SetPositionSpeed(degrees, DefaultSpeed, DefaultAccel)
}

// SetPositionSpeed commands the position loop in degrees with explicit speed
// and acceleration limits.
func (m *Motor) SetPositionSpeed(degrees float64, speed, accel int32) error {
	return m.command(Command{Kind: KindSetPositionSpeed, Value: degrees, Speed: speed, Accel: accel})
}

// SetOrigin fixes the motor's origin at the current position. This is a
// one-shot command: it clears any repeating setpoint and is never re-sent.
func (m *Motor) SetOrigin(mode OriginMode) error {
	if mode > OriginRestoreDefault {
		return fmt.Errorf("%w: origin mode %d (valid 0..2)", ErrInvalidArgument, mode)
	}
	if m.closed.Load() {
		return ErrClosed
	}
	m.clearCommand()
	return m.send(Command{Kind: KindSetOriginHere, Origin: mode})
}

// Stop commands zero current and clears the repeating setpoint, leaving the
// motor free-spinning. The handle stays open; issue a new command to resume.
func (m *Motor) Stop() error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.clearCommand()
	return m.send(Command{Kind: KindSetCurrent, Value: 0})
}

// Feedback returns the latest telemetry snapshot, or the zero value if none
// has been received. It never blocks on bus traffic.
func (m *Motor) Feedback() Feedback {
	m.fbMu.RLock()
	defer m.fbMu.RUnlock()
	return m.fb
}

// Close stops the control loop, sends a final zero-current command, and
// detaches from the bus. For registry-managed motors this releases the
// shared transport once no motors remain on it. Teardown failures are
// logged, not returned.
func (m *Motor) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		m.clearCommand()
		close(m.stop)
		select {
		case <-m.done:
		case <-time.After(closeWait):
			m.log.Warn("control loop did not stop in time", "motor", m.id)
		}
		// Safe-stop: zero current is the last frame this motor sends.
		if err := m.send(Command{Kind: KindSetCurrent, Value: 0}); err != nil {
			m.log.Error("stop command failed", "motor", m.id, "error", err)
		}
		m.bus.unregister(m.id)
		if m.reg != nil {
			m.reg.release(m.bus)
		}
	})
	return nil
}

// command stores c as the repeating setpoint and transmits it once. Send
// failures are returned to the caller; the setpoint stays stored and the
// control loop keeps retrying it.
func (m *Motor) command(c Command) error {
	if m.closed.Load() {
		return ErrClosed
	}
	m.cmdMu.Lock()
	cc := c
	m.cmd = &cc
	m.cmdMu.Unlock()
	return m.send(c)
}

func (m *Motor) clearCommand() {
	m.cmdMu.Lock()
	m.cmd = nil
	m.cmdMu.Unlock()
}

func (m *Motor) send(c Command) error {
	if err := m.bus.send(commandFrame(m.id, c)); err != nil {
		return fmt.Errorf("cubemars: send %s to motor %d: %w", c.Kind, m.id, err)
	}
	return nil
}

// run re-sends the stored setpoint at controlInterval until the motor is
// closed. Send failures are logged at most once per second and never stop
// the loop.
func (m *Motor) run() {
	defer close(m.done)
	ticker := time.NewTicker(controlInterval)
	defer ticker.Stop()
	var lastWarn time.Time
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.cmdMu.Lock()
			var c *Command
			if m.cmd != nil {
				cc := *m.cmd
				c = &cc
			}
			m.cmdMu.Unlock()
			if c == nil {
				continue
			}
			if err := m.bus.send(commandFrame(m.id, *c)); err != nil {
				if time.Since(lastWarn) >= time.Second {
					lastWarn = time.Now()
					m.log.Warn("setpoint resend failed",
						"motor", m.id,
						"kind", c.Kind.String(),
						"error", err,
					)
				}
			}
		}
	}
}

// processInbound is called by the bus dispatch loop for frames whose address
// matches this motor. Wrong-length payloads are dropped without touching the
// snapshot.
func (m *Motor) processInbound(f canbus.Frame) {
	if frameAddress(f) != m.id {
		return
	}
	if f.Len != feedbackLen {
		return
	}
	fb := parseFeedback(f)
	m.fbMu.Lock()
	m.fb = fb
	m.fbMu.Unlock()
}
