package tlspolicy

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/thushan/llamatap/internal/logger"
)

const (
	DefaultConnectionTimeout   = 30 * time.Second
	DefaultKeepAlive           = 60 * time.Second
	DefaultIdleConnTimeout     = 90 * time.Second
	DefaultTLSHandshakeTimeout = 10 * time.Second
	DefaultMaxIdleConnsPerHost = 32
)

type TransportOptions struct {
	ConnectionTimeout time.Duration
	KeepAlive         time.Duration
	IdleConnTimeout   time.Duration
}

// generation pairs a cert table with the transports built from it, so a swap never
// leaves a transport carrying a stale trust decision
type generation struct {
	table      *CertTable
	transports *xsync.Map[string, *http.Transport]
}

// Policy hands out one transport per upstream hostname with that host's TLS decision baked in
type Policy struct {
	current atomic.Pointer[generation]
	logger  *logger.StyledLogger
	opts    TransportOptions
	built   atomic.Int64
}

func NewPolicy(table *CertTable, opts TransportOptions, log *logger.StyledLogger) *Policy {
	if opts.ConnectionTimeout <= 0 {
		opts.ConnectionTimeout = DefaultConnectionTimeout
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = DefaultKeepAlive
	}
	if opts.IdleConnTimeout <= 0 {
		opts.IdleConnTimeout = DefaultIdleConnTimeout
	}
	if table == nil {
		table = EmptyTable()
	}

	p := &Policy{logger: log, opts: opts}
	p.current.Store(newGeneration(table))
	return p
}

func newGeneration(table *CertTable) *generation {
	return &generation{table: table, transports: xsync.NewMap[string, *http.Transport]()}
}

// Swap publishes a new cert table; transports for the old one are drained
func (p *Policy) Swap(table *CertTable) {
	if table == nil {
		table = EmptyTable()
	}
	old := p.current.Swap(newGeneration(table))
	if old == nil {
		return
	}
	old.transports.Range(func(_ string, t *http.Transport) bool {
		t.CloseIdleConnections()
		return true
	})
	p.logger.InfoWithCount("Certificate table swapped", table.Len())
}

func (p *Policy) Table() *CertTable {
	return p.current.Load().table
}

// TransportFor returns the shared transport for hostname, creating it on first use
func (p *Policy) TransportFor(hostname string) http.RoundTripper {
	gen := p.current.Load()
	t, _ := gen.transports.LoadOrCompute(hostname, func() (*http.Transport, bool) {
		return p.newTransport(gen.table, hostname), false
	})
	return t
}

func (p *Policy) newTransport(table *CertTable, hostname string) *http.Transport {
	p.built.Add(1)
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}
	table.Apply(tlsConfig, hostname)

	dialer := &net.Dialer{
		Timeout:   p.opts.ConnectionTimeout,
		KeepAlive: p.opts.KeepAlive,
	}

	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     tlsConfig,
		MaxIdleConnsPerHost: DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:     p.opts.IdleConnTimeout,
		TLSHandshakeTimeout: DefaultTLSHandshakeTimeout,
		DisableCompression:  true,
		ForceAttemptHTTP2:   true,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if tcpConn, ok := conn.(*net.TCPConn); ok {
				_ = tcpConn.SetNoDelay(true)
			}
			return conn, nil
		},
		MaxResponseHeaderBytes: 32 << 10,
	}
}

// Close drops idle connections on every transport
func (p *Policy) Close() {
	p.current.Load().transports.Range(func(_ string, t *http.Transport) bool {
		t.CloseIdleConnections()
		return true
	})
}
