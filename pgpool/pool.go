package pgpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgcore/pgconn"
	"github.com/sethvargo/go-retry"
)

// burstDelay is how long a waiter must starve before the pool grows past the
// soft limit toward the hard limit.
const burstDelay = 10 * time.Millisecond

// nextConnID is the process-wide connection ID source. IDs are opaque;
// wraparound is harmless.
var nextConnID int64

type connPhase int

const (
	phaseStarting connPhase = iota
	phaseBackoff
	phaseIdle
	phaseLeased
	phasePingPong
	phaseClosing
	phaseClosed
)

type poolConn struct {
	id         int64
	generation int64
	phase      connPhase
	conn       PoolConn
	idleSince  time.Time

	keepAliveTimer *time.Timer
	backoff        retry.Backoff
}

type waiter struct {
	ch         chan *Conn // capacity 1
	enqueuedAt time.Time
	cancelled  bool
}

type waiterQueue struct {
	items []*waiter
	head  int
}

func (q *waiterQueue) push(w *waiter) {
	q.items = append(q.items, w)
}

func (q *waiterQueue) pop() *waiter {
	for q.head < len(q.items) {
		w := q.items[q.head]
		q.items[q.head] = nil
		q.head++
		if q.head == len(q.items) {
			q.items = q.items[:0]
			q.head = 0
		}
		if !w.cancelled {
			return w
		}
	}
	return nil
}

func (q *waiterQueue) len() int {
	n := 0
	for _, w := range q.items[q.head:] {
		if w != nil && !w.cancelled {
			n++
		}
	}
	return n
}

func (q *waiterQueue) oldest() *waiter {
	for _, w := range q.items[q.head:] {
		if w != nil && !w.cancelled {
			return w
		}
	}
	return nil
}

func (q *waiterQueue) drain() []*waiter {
	ws := make([]*waiter, 0, q.len())
	for _, w := range q.items[q.head:] {
		if w != nil && !w.cancelled {
			ws = append(ws, w)
		}
	}
	q.items = q.items[:0]
	q.head = 0
	return ws
}

// Pool is a bounded set of long-lived connections shared by concurrent
// callers. The zero value is not usable; construct with NewPool.
type Pool struct {
	config    *Config
	connectFn ConnectFunc
	tracer    Tracer

	createCtx    context.Context
	createCancel context.CancelFunc

	mu         sync.Mutex
	conns      map[*poolConn]struct{}
	waiters    waiterQueue
	draining   bool
	burstTimer *time.Timer

	wakeCh chan struct{} // kicks the Run loop
}

// NewPool validates config, fills defaults, and returns a pool. No
// connections are opened until demand arrives or Run maintains the floor.
func NewPool(config *Config) (*Pool, error) {
	if config.MaxConns < 1 {
		config.MaxConns = 4
	}
	if config.MaxConnsHardLimit != 0 && config.MaxConnsHardLimit < config.MaxConns {
		config.MaxConnsHardLimit = config.MaxConns
	}
	if config.BackoffBase <= 0 {
		config.BackoffBase = defaultBackoffBase
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = defaultBackoffCap
	}
	if config.HealthCheckPeriod <= 0 {
		config.HealthCheckPeriod = defaultHealthCheckPeriod
	}
	if config.KeepAliveQuery == "" {
		config.KeepAliveQuery = defaultKeepAliveQuery
	}
	if config.Tracer == nil {
		config.Tracer = noopTracer{}
	}
	if config.ConnectFunc == nil {
		if config.ConnConfig == nil {
			return nil, errors.New("pgpool: config needs ConnConfig or ConnectFunc")
		}
		connConfig := config.ConnConfig
		config.ConnectFunc = func(ctx context.Context) (PoolConn, error) {
			return pgconn.ConnectConfig(ctx, connConfig)
		}
	}

	createCtx, createCancel := context.WithCancel(context.Background())

	p := &Pool{
		config:       config,
		connectFn:    config.ConnectFunc,
		tracer:       config.Tracer,
		createCtx:    createCtx,
		createCancel: createCancel,
		conns:        make(map[*poolConn]struct{}),
		wakeCh:       make(chan struct{}, 1),
	}

	return p, nil
}

// Acquire leases a connection, waiting in FIFO order behind earlier callers
// when none is available and the pool cannot grow.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil, ErrPoolShutdown
	}

	if pc := p.takeIdleLocked(); pc != nil {
		pc.phase = phaseLeased
		p.mu.Unlock()
		p.tracer.ConnectionLeased(pc.id)
		return &Conn{pool: p, pc: pc}, nil
	}

	w := &waiter{ch: make(chan *Conn, 1), enqueuedAt: time.Now()}
	p.waiters.push(w)
	p.maybeSpawnLocked()
	p.mu.Unlock()
	p.tracer.RequestQueued()

	select {
	case conn := <-w.ch:
		if conn == nil {
			return nil, ErrPoolShutdown
		}
		p.tracer.RequestDequeued()
		p.tracer.ConnectionLeased(conn.pc.id)
		return conn, nil
	case <-ctx.Done():
		p.mu.Lock()
		w.cancelled = true
		p.mu.Unlock()
		p.tracer.RequestTimeout()

		// A connection may have been handed over concurrently; put it back.
		select {
		case conn := <-w.ch:
			if conn != nil {
				conn.Release()
			}
		default:
		}
		return nil, ctx.Err()
	}
}

// TryAcquire leases an idle connection without waiting. When none is idle it
// nudges pool growth and reports ErrConnectionLimitReached.
func (p *Pool) TryAcquire(ctx context.Context) (*Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return nil, ErrPoolShutdown
	}
	if pc := p.takeIdleLocked(); pc != nil {
		pc.phase = phaseLeased
		p.mu.Unlock()
		p.tracer.ConnectionLeased(pc.id)
		return &Conn{pool: p, pc: pc}, nil
	}
	p.maybeSpawnLocked()
	p.mu.Unlock()
	return nil, ErrConnectionLimitReached
}

// AcquireFunc leases a connection for the duration of f and releases it on
// every exit path.
func (p *Pool) AcquireFunc(ctx context.Context, f func(*Conn) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()
	return f(conn)
}

// Run drives pool maintenance: minimum-size upkeep, idle eviction, burst
// admission, and shutdown. It blocks until ctx is cancelled and every
// connection is closed.
func (p *Pool) Run(ctx context.Context) error {
	p.kick()

	ticker := time.NewTicker(p.config.HealthCheckPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.drain()
		case <-ticker.C:
			p.maintain()
		case <-p.wakeCh:
			p.maintain()
		}
	}
}

// Close shuts the pool down without a Run loop, for callers that never
// started one.
func (p *Pool) Close() {
	p.drain()
}

// CloseGracefully drains the pool like shutdown, but idle connections say
// Terminate before their sockets close. Outstanding leases still complete
// normally. Cancelling ctx falls back to closing the remaining connections
// immediately.
func (p *Pool) CloseGracefully(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- p.drainMode(true) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		p.mu.Lock()
		var rest []*poolConn
		for pc := range p.conns {
			if pc.conn != nil && pc.phase != phaseClosing && pc.phase != phaseClosed {
				pc.phase = phaseClosing
				p.stopKeepAliveLocked(pc)
				rest = append(rest, pc)
			}
		}
		p.mu.Unlock()

		for _, pc := range rest {
			p.closeConn(pc, false)
		}

		<-done
		return ctx.Err()
	}
}

func (p *Pool) kick() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *Pool) maintain() {
	var evict []*poolConn

	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}

	if p.config.MaxConnIdleTime > 0 {
		now := time.Now()
		idle := p.countLocked(phaseIdle)
		for pc := range p.conns {
			if idle <= int(p.config.MinConns) {
				break
			}
			if pc.phase == phaseIdle && now.Sub(pc.idleSince) > p.config.MaxConnIdleTime {
				pc.phase = phaseClosing
				p.stopKeepAliveLocked(pc)
				evict = append(evict, pc)
				idle--
			}
		}
	}

	p.maybeSpawnLocked()
	p.mu.Unlock()

	for _, pc := range evict {
		p.closeConn(pc, true)
	}
}

// maybeSpawnLocked starts connection creations to satisfy demand and the
// MinConns floor. Ordinary demand grows the pool to the soft limit; waiters
// older than burstDelay justify growth to the hard limit.
func (p *Pool) maybeSpawnLocked() {
	if p.draining {
		return
	}

	hard := p.config.hardLimit()

	for {
		live := int32(len(p.conns))
		if live >= hard {
			return
		}

		starting := int32(p.countLocked(phaseStarting) + p.countLocked(phaseBackoff))
		demand := int32(p.waiters.len()) - starting

		if demand <= 0 {
			if live < p.config.MinConns {
				p.spawnLocked()
				continue
			}
			return
		}

		if live < p.config.MaxConns {
			p.spawnLocked()
			continue
		}

		w := p.waiters.oldest()
		if w != nil && time.Since(w.enqueuedAt) >= burstDelay {
			p.spawnLocked()
			continue
		}

		// Re-check once the oldest waiter has starved long enough.
		if p.burstTimer == nil {
			p.burstTimer = time.AfterFunc(burstDelay, func() {
				p.mu.Lock()
				p.burstTimer = nil
				p.maybeSpawnLocked()
				p.mu.Unlock()
			})
		}
		return
	}
}

func (p *Pool) spawnLocked() {
	pc := &poolConn{
		id:    atomic.AddInt64(&nextConnID, 1),
		phase: phaseStarting,
		backoff: retry.WithJitter(p.config.BackoffBase,
			retry.WithCappedDuration(p.config.BackoffCap,
				retry.NewExponential(p.config.BackoffBase))),
	}
	p.conns[pc] = struct{}{}
	go p.runCreation(pc)
}

func (p *Pool) runCreation(pc *poolConn) {
	for {
		p.tracer.ConnectionStarted(pc.id)

		conn, err := p.connectFn(p.createCtx)
		if err == nil {
			p.tracer.ConnectionSucceeded(pc.id)

			p.mu.Lock()
			if p.draining {
				p.mu.Unlock()
				pc.conn = conn
				p.closeConn(pc, false)
				return
			}
			pc.conn = conn
			pc.generation++
			leasedID, delivered := p.installLocked(pc)
			p.mu.Unlock()

			if delivered {
				p.tracer.ConnectionLeased(leasedID)
			}
			return
		}

		p.tracer.ConnectionFailed(pc.id, err)

		p.mu.Lock()
		if p.draining {
			p.mu.Unlock()
			p.removeConn(pc)
			return
		}
		pc.phase = phaseBackoff
		p.mu.Unlock()

		delay, _ := pc.backoff.Next()
		select {
		case <-time.After(delay):
		case <-p.createCtx.Done():
			p.removeConn(pc)
			return
		}

		p.mu.Lock()
		noDemand := p.waiters.len() == 0 && int32(len(p.conns)) > p.config.MinConns
		if p.draining || noDemand {
			p.mu.Unlock()
			p.removeConn(pc)
			return
		}
		pc.phase = phaseStarting
		p.mu.Unlock()
	}
}

// installLocked routes a usable connection to the oldest waiter, or parks it
// idle. Returns the connection id and true if it was handed to a waiter.
func (p *Pool) installLocked(pc *poolConn) (int64, bool) {
	if w := p.waiters.pop(); w != nil {
		pc.phase = phaseLeased
		w.ch <- &Conn{pool: p, pc: pc}
		return pc.id, true
	}

	pc.phase = phaseIdle
	pc.idleSince = time.Now()
	p.armKeepAliveLocked(pc)
	return pc.id, false
}

func (p *Pool) takeIdleLocked() *poolConn {
	var best *poolConn
	for pc := range p.conns {
		if pc.phase != phaseIdle {
			continue
		}
		if best == nil || pc.idleSince.Before(best.idleSince) {
			best = pc
		}
	}
	if best != nil {
		p.stopKeepAliveLocked(best)
	}
	return best
}

func (p *Pool) countLocked(phase connPhase) int {
	n := 0
	for pc := range p.conns {
		if pc.phase == phase {
			n++
		}
	}
	return n
}

func (p *Pool) armKeepAliveLocked(pc *poolConn) {
	if p.config.KeepAlivePeriod <= 0 {
		return
	}
	pc.keepAliveTimer = time.AfterFunc(p.config.KeepAlivePeriod, func() {
		p.keepAlive(pc)
	})
}

func (p *Pool) stopKeepAliveLocked(pc *poolConn) {
	if pc.keepAliveTimer != nil {
		pc.keepAliveTimer.Stop()
		pc.keepAliveTimer = nil
	}
}

// keepAlive pings one idle connection. While the ping is outstanding the
// connection is in phasePingPong and cannot be leased; a failed ping evicts
// it.
func (p *Pool) keepAlive(pc *poolConn) {
	p.mu.Lock()
	if pc.phase != phaseIdle || p.draining {
		p.mu.Unlock()
		return
	}
	pc.phase = phasePingPong
	pc.keepAliveTimer = nil
	p.mu.Unlock()

	p.tracer.KeepAliveTriggered(pc.id)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	_, err := pc.conn.Exec(ctx, p.config.KeepAliveQuery)
	cancel()

	if err != nil {
		p.tracer.KeepAliveFailed(pc.id, err)
		p.mu.Lock()
		pc.phase = phaseClosing
		p.mu.Unlock()
		p.closeConn(pc, false)
		return
	}

	p.tracer.KeepAliveSucceeded(pc.id)

	p.mu.Lock()
	if p.draining {
		pc.phase = phaseClosing
		p.mu.Unlock()
		p.closeConn(pc, false)
		return
	}
	leasedID, delivered := p.installLocked(pc)
	p.mu.Unlock()

	if delivered {
		p.tracer.ConnectionLeased(leasedID)
	}
}

// release returns a leased connection to the pool.
func (p *Pool) release(pc *poolConn) {
	p.tracer.ConnectionReleased(pc.id)

	if pc.conn.IsClosed() {
		p.mu.Lock()
		pc.phase = phaseClosing
		p.mu.Unlock()
		p.removeConn(pc)
		return
	}

	p.mu.Lock()
	if p.draining {
		pc.phase = phaseClosing
		p.mu.Unlock()
		p.closeConn(pc, false)
		return
	}
	leasedID, delivered := p.installLocked(pc)
	p.mu.Unlock()

	if delivered {
		p.tracer.ConnectionLeased(leasedID)
	}
}

// hijack detaches a leased connection from the pool without closing it.
func (p *Pool) hijack(pc *poolConn) {
	p.mu.Lock()
	delete(p.conns, pc)
	p.mu.Unlock()
	p.kick()
}

// closeConn closes the network connection and forgets it. gracefully lets an
// in-flight protocol exchange finish first.
func (p *Pool) closeConn(pc *poolConn, gracefully bool) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if pc.conn != nil {
			if gracefully {
				pc.conn.CloseGracefully(ctx)
			} else {
				pc.conn.Close(ctx)
			}
		}
		p.removeConn(pc)
	}()
}

func (p *Pool) removeConn(pc *poolConn) {
	p.mu.Lock()
	p.stopKeepAliveLocked(pc)
	pc.phase = phaseClosed
	delete(p.conns, pc)
	p.mu.Unlock()

	p.tracer.ConnectionClosed(pc.id)
	p.kick()
}

// drain runs shutdown: refuse new work, fail waiters, close idle
// connections immediately, cancel creations and backoff timers, and wait for
// leased connections to come home.
func (p *Pool) drain() error {
	return p.drainMode(false)
}

// drainMode is drain with a choice of how idle connections go away:
// gracefully (Terminate first) or immediately. A second concurrent call
// joins the wait instead of restarting shutdown.
func (p *Pool) drainMode(graceful bool) error {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return p.waitDrained()
	}
	p.draining = true
	if p.burstTimer != nil {
		p.burstTimer.Stop()
		p.burstTimer = nil
	}
	waiters := p.waiters.drain()

	var idle []*poolConn
	for pc := range p.conns {
		if pc.phase == phaseIdle || pc.phase == phasePingPong {
			if pc.phase == phaseIdle {
				pc.phase = phaseClosing
				p.stopKeepAliveLocked(pc)
				idle = append(idle, pc)
			}
			// phasePingPong finishes its ping and self-destructs on install.
		}
	}
	p.mu.Unlock()

	// Abort in-progress creations and pending backoff timers.
	p.createCancel()

	for _, w := range waiters {
		close(w.ch)
	}
	for _, pc := range idle {
		p.closeConn(pc, graceful)
	}

	return p.waitDrained()
}

// waitDrained blocks until every connection record is gone.
func (p *Pool) waitDrained() error {
	for {
		p.mu.Lock()
		n := len(p.conns)
		p.mu.Unlock()
		if n == 0 {
			return nil
		}
		select {
		case <-p.wakeCh:
		case <-time.After(100 * time.Millisecond):
		}
	}
}
