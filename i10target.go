// Package i10target implements the target side of the i10 remote
// storage transport: an NVMe-over-TCP endpoint that batches outbound
// PDUs into per-queue caravans before handing them to the kernel. This
// file is the package's main entry point, in the shape of the
// teacher's CreateAndServe/Device/Options API, retargeted from a
// single ublk character device to a set of TCP listen ports.
package i10target

import (
	"context"
	"fmt"
	"sync"

	"github.com/i10-io/i10-target/internal/backend"
	"github.com/i10-io/i10-target/internal/logging"
	"github.com/i10-io/i10-target/internal/metrics"
	"github.com/i10-io/i10-target/internal/port"
)

// PortParams configures one bind address the target listens on.
type PortParams struct {
	// Address is the "host:port" the target binds and listens on.
	Address string

	// QueueDepth bounds in-flight commands per queue accepted on this
	// port (default: DefaultQueueDepth).
	QueueDepth int

	// NumCPUs is the number of I/O reactors this port round-robins
	// accepted queues across (default: 1).
	NumCPUs int

	// UseIOURing opts every queue accepted on this port into flushing
	// caravans through io_uring instead of net.Buffers. Only takes
	// effect in binaries built with -tags giouring.
	UseIOURing bool
}

// Params contains parameters for starting the target.
type Params struct {
	// Backend provides the storage implementation every accepted queue
	// submits commands to.
	Backend backend.Backend

	// Ports are the addresses to listen on; at least one is required.
	Ports []PortParams
}

// Options contains additional options for starting the target.
type Options struct {
	// Context for cancellation (if nil, Serve's ctx argument is used).
	Context context.Context

	// Logger for debug/info messages (if nil, uses logging.Default()).
	Logger *logging.Logger

	// Metrics collector (if nil, uses metrics.NewDefault()).
	Metrics *metrics.Metrics
}

// Target is a running i10 target: a set of listening ports all sharing
// one backend.
type Target struct {
	ports   []*port.Port
	log     *logging.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	stopped  bool
}

// Serve starts listening on every configured port and returns a
// running Target. Call Stop to release all resources.
//
// Example:
//
//	be := mem.New(64 << 20) // 64MB RAM namespace
//	target, err := i10target.Serve(context.Background(), i10target.Params{
//		Backend: be,
//		Ports:   []i10target.PortParams{{Address: ":4420"}},
//	}, nil)
func Serve(ctx context.Context, params Params, options *Options) (*Target, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if options == nil {
		options = &Options{}
	}
	if options.Context != nil {
		ctx = options.Context
	}
	if len(params.Ports) == 0 {
		return nil, NewError("Serve", ErrCodeInvalidParameters, "at least one port is required")
	}
	if params.Backend == nil {
		return nil, NewError("Serve", ErrCodeInvalidParameters, "a backend is required")
	}

	log := options.Logger
	if log == nil {
		log = logging.Default()
	}
	m := options.Metrics
	if m == nil {
		m = metrics.NewDefault()
	}

	t := &Target{log: log, metrics: m}

	for _, pp := range params.Ports {
		depth := pp.QueueDepth
		if depth == 0 {
			depth = DefaultQueueDepth
		}
		cpus := pp.NumCPUs
		if cpus == 0 {
			cpus = 1
		}
		p, err := port.AddPort(port.Config{
			Address:    pp.Address,
			Backend:    params.Backend,
			Log:        log,
			Metrics:    m,
			QueueDepth: depth,
			NumCPUs:    cpus,
			UseIOURing: pp.UseIOURing,
		})
		if err != nil {
			t.Stop()
			return nil, fmt.Errorf("i10target: %w", err)
		}
		t.ports = append(t.ports, p)
	}

	go func() {
		<-ctx.Done()
		t.Stop()
	}()

	return t, nil
}

// Stop tears down every listening port and accepted queue. Safe to
// call more than once.
func (t *Target) Stop() error {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return nil
	}
	t.stopped = true
	t.mu.Unlock()

	var firstErr error
	for _, p := range t.ports {
		if err := p.RemovePort(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
