package port

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/i10-io/i10-target/internal/backend"
	"github.com/i10-io/i10-target/internal/constants"
	"github.com/i10-io/i10-target/internal/logging"
	"github.com/i10-io/i10-target/internal/metrics"
	"github.com/i10-io/i10-target/internal/queue"
	"github.com/i10-io/i10-target/internal/sockopt"
)

// Config describes one bind address this target listens on
// (spec.md §6 expansion).
type Config struct {
	Address    string // host:port
	Backend    backend.Backend
	Log        *logging.Logger
	Metrics    *metrics.Metrics
	QueueDepth int
	NumCPUs    int  // number of reactors to round-robin queues across
	UseIOURing bool // opt every queue on this port into the io_uring flush path
}

// Port owns one listening socket and every queue (connection) accepted
// on it. The first connection accepted on a port serves as its admin
// queue (qid 0); every later connection is assigned the next I/O queue
// id, mirroring the NVMe-oF convention that the admin queue is
// established before any I/O queue on a controller.
type Port struct {
	cfg Config
	ln  *net.TCPListener
	lnFD int

	reactors []*Reactor
	nextCPU  atomic.Uint32
	nextQID  atomic.Uint32

	mu     sync.Mutex
	queues map[uint16]*queue.Queue

	stop chan struct{}
	done chan struct{}
}

// AddPort binds cfg.Address, starts its reactors, and begins accepting
// connections. Call RemovePort to tear it down.
func AddPort(cfg Config) (*Port, error) {
	if cfg.QueueDepth == 0 {
		cfg.QueueDepth = constants.DefaultQueueDepth
	}
	if cfg.NumCPUs <= 0 {
		cfg.NumCPUs = 1
	}

	addr, err := net.ResolveTCPAddr("tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("port: resolve %s: %w", cfg.Address, err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("port: listen %s: %w", cfg.Address, err)
	}
	lnFD, err := sockopt.ListenerRawFD(ln)
	if err != nil {
		ln.Close()
		return nil, err
	}
	if err := sockopt.ApplyListenerOptions(lnFD); err != nil {
		ln.Close()
		return nil, err
	}

	p := &Port{
		cfg:    cfg,
		ln:     ln,
		lnFD:   lnFD,
		queues: make(map[uint16]*queue.Queue),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	p.nextQID.Store(0)

	for i := 0; i < cfg.NumCPUs; i++ {
		r, err := NewReactor(i, cfg.Log)
		if err != nil {
			p.ln.Close()
			return nil, fmt.Errorf("port: reactor %d: %w", i, err)
		}
		p.reactors = append(p.reactors, r)
		go r.Run()
	}

	go p.acceptLoop()
	return p, nil
}

// RemovePort stops accepting new connections, tears down every queue,
// and releases the listening socket and its reactors.
func (p *Port) RemovePort() error {
	close(p.stop)
	err := p.ln.Close()
	<-p.done

	p.mu.Lock()
	queues := make([]*queue.Queue, 0, len(p.queues))
	for _, q := range p.queues {
		queues = append(queues, q)
	}
	p.mu.Unlock()
	for _, q := range queues {
		q.MarkDisconnecting()
	}

	for _, r := range p.reactors {
		r.Close()
	}
	return err
}

func (p *Port) acceptLoop() {
	defer close(p.done)
	for {
		conn, err := p.ln.AcceptTCP()
		if err != nil {
			select {
			case <-p.stop:
				return
			default:
			}
			if p.cfg.Log != nil {
				p.cfg.Log.Warnf("port %s: accept: %v", p.cfg.Address, err)
			}
			return
		}
		p.handleAccept(conn)
	}
}

func (p *Port) handleAccept(conn *net.TCPConn) {
	if err := sockopt.ApplyConnOptions(conn, constants.ForcedSocketBufferBytes); err != nil {
		if p.cfg.Log != nil {
			p.cfg.Log.Warnf("port %s: socket options: %v", p.cfg.Address, err)
		}
		conn.Close()
		return
	}

	qid := uint16(p.nextQID.Add(1) - 1)
	cpuIdx := int(p.nextCPU.Add(1)-1) % len(p.reactors)
	reactor := p.reactors[cpuIdx]

	sq, err := p.cfg.Backend.InitQueue(qid, p.cfg.QueueDepth)
	if err != nil {
		if p.cfg.Log != nil {
			p.cfg.Log.Errorf("port %s: backend InitQueue qid=%d: %v", p.cfg.Address, qid, err)
		}
		conn.Close()
		return
	}

	q := queue.New(queue.Config{
		QID:        qid,
		CorrID:     xid.New().String(),
		Conn:       conn,
		Backend:    p.cfg.Backend,
		Depth:      p.cfg.QueueDepth,
		CPU:        cpuIdx,
		Log:        p.cfg.Log,
		Metrics:    p.cfg.Metrics,
		UseIOURing: p.cfg.UseIOURing,
		OnStateChange: func(q *queue.Queue, s queue.State) {
			if s == queue.StateDisconnecting {
				p.teardown(q, sq)
			}
		},
	})

	p.mu.Lock()
	p.queues[qid] = q
	p.mu.Unlock()

	sub := &queueSubscriber{q: q, reactor: reactor, conn: conn}
	fd, err := sockopt.RawFD(conn)
	if err != nil {
		conn.Close()
		return
	}
	if err := reactor.Register(fd, sub); err != nil {
		if p.cfg.Log != nil {
			p.cfg.Log.Errorf("port %s: reactor register qid=%d: %v", p.cfg.Address, qid, err)
		}
		conn.Close()
		return
	}
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.QueuesLive.Inc()
	}
}

func (p *Port) teardown(q *queue.Queue, sq backend.SubmissionQueue) {
	p.mu.Lock()
	delete(p.queues, q.QID)
	p.mu.Unlock()
	q.UninitPendingDataIn()
	p.cfg.Backend.DestroyQueue(sq)
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.QueuesLive.Dec()
	}
}

// queueSubscriber adapts a queue.Queue's cooperative worker to the
// Reactor's Subscriber interface.
type queueSubscriber struct {
	q       *queue.Queue
	reactor *Reactor
	conn    *net.TCPConn
}

func (s *queueSubscriber) OnReadable() { s.runWork() }
func (s *queueSubscriber) OnWritable() { s.runWork() }

func (s *queueSubscriber) OnStateChange(kind EventKind) {
	if kind == EventHangup {
		s.q.MarkDisconnecting()
		fd, err := sockopt.RawFD(s.conn)
		if err == nil {
			s.reactor.Unregister(fd)
		}
		s.conn.Close()
	}
}

func (s *queueSubscriber) runWork() {
	_, fatal := s.q.RunIOWork()
	if fatal {
		s.q.MarkDisconnecting()
		fd, err := sockopt.RawFD(s.conn)
		if err == nil {
			s.reactor.Unregister(fd)
		}
		s.conn.Close()
		return
	}
	if fd, err := sockopt.RawFD(s.conn); err == nil {
		s.reactor.SetInterest(fd, true, s.q.HasPendingSendWork())
	}
}
