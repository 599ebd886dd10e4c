package pgpool

// Stat is a point-in-time snapshot of pool occupancy.
type Stat struct {
	TotalConns        int32
	StartingConns     int32
	BackoffConns      int32
	IdleConns         int32
	LeasedConns       int32
	PingPongConns     int32
	ClosingConns      int32
	PendingRequests   int32
	MaxConns          int32
	MaxConnsHardLimit int32
	MinConns          int32
}

// Stat snapshots the pool under its lock.
func (p *Pool) Stat() Stat {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stat{
		TotalConns:        int32(len(p.conns)),
		PendingRequests:   int32(p.waiters.len()),
		MaxConns:          p.config.MaxConns,
		MaxConnsHardLimit: p.config.hardLimit(),
		MinConns:          p.config.MinConns,
	}

	for pc := range p.conns {
		switch pc.phase {
		case phaseStarting:
			s.StartingConns++
		case phaseBackoff:
			s.BackoffConns++
		case phaseIdle:
			s.IdleConns++
		case phaseLeased:
			s.LeasedConns++
		case phasePingPong:
			s.PingPongConns++
		case phaseClosing:
			s.ClosingConns++
		}
	}

	return s
}
