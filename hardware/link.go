// Package hardware speaks the line protocol of the az-alt mount controller.
package hardware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/signalsfoundry/mount-tracker/internal/logging"
)

// ErrProtocolUnexpected reports a reply the current state does not accept.
// The reply is dropped and the link keeps waiting.
var ErrProtocolUnexpected = errors.New("hardware: unexpected reply")

// DefaultReadTimeout bounds the wait for one reply line in Update.
const DefaultReadTimeout = 50 * time.Millisecond

// Mount is what the tracker needs from a mount. Angles are in degrees and
// rates in degrees per second.
type Mount interface {
	SetAzimuthSpeed(ctx context.Context, dps float64) error
	SetAltitudeSpeed(ctx context.Context, dps float64) error
	SetTargetAzimuth(ctx context.Context, deg float64) error
	SetTargetAltitude(ctx context.Context, deg float64) error
	SetAzimuth(ctx context.Context, deg float64) error
	SetAltitude(ctx context.Context, deg float64) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Update(ctx context.Context) error
	Ready() bool
}

// Observer receives link diagnostics.
type Observer interface {
	SetLinkState(state string, states []string)
	IncUnexpectedReply()
}

// Option configures a Link.
type Option func(*Link)

// WithEcho logs every received line at info level.
func WithEcho(echo bool) Option {
	return func(l *Link) { l.echo = echo }
}

// WithReadTimeout overrides DefaultReadTimeout.
func WithReadTimeout(d time.Duration) Option {
	return func(l *Link) {
		if d > 0 {
			l.readTimeout = d
		}
	}
}

// WithObserver reports state changes and unexpected replies to o.
func WithObserver(o Observer) Option {
	return func(l *Link) { l.observer = o }
}

// WithLogger sets the link logger.
func WithLogger(log logging.Logger) Option {
	return func(l *Link) { l.log = logging.OrNoop(log) }
}

// Link drives a mount controller over a Transport. The controller announces
// itself at boot, so a reply is expected from the start.
type Link struct {
	t           Transport
	readTimeout time.Duration
	echo        bool
	observer    Observer
	log         logging.Logger

	// readMu admits one reader at a time, so each reply is consumed once.
	readMu sync.Mutex

	mu       sync.Mutex
	state    State
	awaiting bool
	// armed counts sendExpectingReply calls. A request sent while a read is
	// in flight keeps awaiting set after that read's reply is consumed.
	armed    uint64
}

var _ Mount = (*Link)(nil)

// NewLink wraps t. The transport remains owned by the caller.
func NewLink(t Transport, opts ...Option) *Link {
	l := &Link{
		t:           t,
		readTimeout: DefaultReadTimeout,
		log:         logging.Noop(),
		state:       StateUnknown,
		awaiting:    true,
	}
	for _, opt := range opts {
		opt(l)
	}
	l.reportState()
	return l
}

// State returns the current link state.
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Awaiting reports whether a reply is expected.
func (l *Link) Awaiting() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.awaiting
}

// Ready reports whether the controller has announced itself.
func (l *Link) Ready() bool {
	return l.State() != StateUnknown
}

// SetAzimuthSpeed implements Mount.
func (l *Link) SetAzimuthSpeed(ctx context.Context, dps float64) error {
	l.log.Debug(ctx, "setting azimuth speed", logging.Float("dps", dps))
	return l.send(EncodeAzimuthSpeed(dps))
}

// SetAltitudeSpeed implements Mount.
func (l *Link) SetAltitudeSpeed(ctx context.Context, dps float64) error {
	l.log.Debug(ctx, "setting altitude speed", logging.Float("dps", dps))
	return l.send(EncodeAltitudeSpeed(dps))
}

// SetTargetAzimuth implements Mount.
func (l *Link) SetTargetAzimuth(ctx context.Context, deg float64) error {
	l.log.Debug(ctx, "sending target azimuth", logging.Float("deg", deg))
	return l.send(EncodeTargetAzimuth(deg))
}

// SetTargetAltitude implements Mount.
func (l *Link) SetTargetAltitude(ctx context.Context, deg float64) error {
	l.log.Debug(ctx, "sending target altitude", logging.Float("deg", deg))
	return l.send(EncodeTargetAltitude(deg))
}

// SetAzimuth implements Mount.
func (l *Link) SetAzimuth(ctx context.Context, deg float64) error {
	l.log.Info(ctx, "setting mount azimuth", logging.Float("deg", deg))
	return l.send(EncodeAzimuth(deg))
}

// SetAltitude implements Mount.
func (l *Link) SetAltitude(ctx context.Context, deg float64) error {
	l.log.Info(ctx, "setting mount altitude", logging.Float("deg", deg))
	return l.send(EncodeAltitude(deg))
}

// Start asks the controller to power the motors.
func (l *Link) Start(ctx context.Context) error {
	l.log.Info(ctx, "requesting start")
	return l.sendExpectingReply(CmdEngage)
}

// Stop asks the controller to release the motors. It does not close the
// transport.
func (l *Link) Stop(ctx context.Context) error {
	l.log.Info(ctx, "requesting stop")
	return l.sendExpectingReply(CmdRelease)
}

// Update consumes at most one reply line, and only when one is expected. A
// read timeout is not an error; the link keeps waiting. Concurrent calls are
// serialized.
func (l *Link) Update(ctx context.Context) error {
	l.readMu.Lock()
	defer l.readMu.Unlock()

	l.mu.Lock()
	if !l.awaiting {
		l.mu.Unlock()
		return nil
	}
	armed := l.armed
	l.mu.Unlock()

	line, err := l.t.ReadLine(l.readTimeout)
	if errors.Is(err, ErrReadTimeout) {
		return nil
	}
	if err != nil {
		if !errors.Is(err, ErrTransportClosed) {
			err = fmt.Errorf("%w: %v", ErrTransportClosed, err)
		}
		return err
	}
	if l.echo {
		l.log.Info(ctx, "received", logging.String("line", line))
	}

	l.mu.Lock()
	from := l.state
	to, ok := next(from, line)
	if ok {
		l.state = to
		l.awaiting = l.armed != armed
	}
	l.mu.Unlock()

	if !ok {
		if l.observer != nil {
			l.observer.IncUnexpectedReply()
		}
		return fmt.Errorf("%w: %q in state %s", ErrProtocolUnexpected, line, from)
	}

	switch {
	case from == StateUnknown:
		l.log.Info(ctx, "mount controller ready")
	case to == StateOnline:
		l.log.Info(ctx, "motors powered")
	default:
		l.log.Info(ctx, "motors unpowered")
	}
	l.reportState()
	return nil
}

func (l *Link) send(cmd string) error {
	if _, err := io.WriteString(l.t, cmd); err != nil {
		if errors.Is(err, ErrTransportClosed) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}
	return nil
}

func (l *Link) sendExpectingReply(cmd string) error {
	if err := l.send(cmd); err != nil {
		return err
	}
	l.mu.Lock()
	l.awaiting = true
	l.armed++
	l.mu.Unlock()
	return nil
}

func (l *Link) reportState() {
	if l.observer == nil {
		return
	}
	labels := make([]string, len(States))
	for i, s := range States {
		labels[i] = s.String()
	}
	l.observer.SetLinkState(l.State().String(), labels)
}
