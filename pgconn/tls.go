package pgconn

import (
	"crypto/tls"
	"net"
	"sync"
)

// tlsConfigCache shares one derived tls.Config between concurrent connection
// starts that use the same base config and host, instead of cloning per
// attempt.
var tlsConfigCache = struct {
	mu sync.Mutex
	m  map[tlsCacheKey]*tls.Config
}{m: make(map[tlsCacheKey]*tls.Config)}

type tlsCacheKey struct {
	base       *tls.Config
	host       string
	serverName string
}

// tlsConfigForHost derives the per-connection TLS config: the base config
// with SNI filled in. serverName overrides; IP-literal hosts get no SNI, per
// RFC 6066.
func tlsConfigForHost(base *tls.Config, host, serverName string) *tls.Config {
	if base == nil {
		base = &tls.Config{InsecureSkipVerify: true}
	}

	key := tlsCacheKey{base: base, host: host, serverName: serverName}

	tlsConfigCache.mu.Lock()
	defer tlsConfigCache.mu.Unlock()

	if cfg, ok := tlsConfigCache.m[key]; ok {
		return cfg
	}

	cfg := base.Clone()
	switch {
	case serverName != "":
		cfg.ServerName = serverName
	case cfg.ServerName != "":
		// configured explicitly
	case net.ParseIP(host) == nil:
		cfg.ServerName = host
	}

	tlsConfigCache.m[key] = cfg
	return cfg
}
