// Package fetcher owns outbound HTTP: a pool of reusable client sessions
// with independent cookie jars, and a retrying fetch routine driven by a
// per-status policy table.
package fetcher

import (
	"net/http"
	"net/http/cookiejar"
	"net/url"

	"github.com/internetarchive/Talos/internal/pkg/config"
	"github.com/internetarchive/Talos/internal/pkg/log"
)

// Session is one pooled HTTP client with its own cookie jar. Sessions are
// replaced, never repaired: a poisoned session is discarded and a fresh one
// takes its slot.
type Session struct {
	Client *http.Client
}

// SessionPool hands out sessions to workers, capping concurrent sessions at
// the pool size. Acquire blocks when the pool is empty.
type SessionPool struct {
	sessions chan *Session
	seedURL  *url.URL
	cookies  []*http.Cookie
	logger   *log.FieldedLogger
}

// NewSessionPool builds a pool of size clients. seedURL scopes the
// configured cookies; it may be nil when no cookies are set. Clients carry
// no fixed timeout of their own: request deadlines come from the fetcher,
// which scales them per attempt.
func NewSessionPool(size int, seedURL *url.URL, cookies []*http.Cookie) *SessionPool {
	p := &SessionPool{
		sessions: make(chan *Session, size),
		seedURL:  seedURL,
		cookies:  cookies,
		logger: log.NewFieldedLogger(&log.Fields{
			"component": "fetcher.sessionPool",
		}),
	}

	for i := 0; i < size; i++ {
		p.sessions <- p.newSession()
	}

	return p
}

// NewSessionPoolFromConfig builds the pool the crawl command uses.
func NewSessionPoolFromConfig(cfg *config.Config, seedURL *url.URL) *SessionPool {
	return NewSessionPool(
		cfg.SessionsCount,
		seedURL,
		cfg.ParseCookies(),
	)
}

func (p *SessionPool) newSession() *Session {
	jar, _ := cookiejar.New(nil)
	if p.seedURL != nil && len(p.cookies) > 0 {
		jar.SetCookies(p.seedURL, p.cookies)
	}

	return &Session{
		Client: &http.Client{
			Jar: jar,
		},
	}
}

// Acquire blocks until a session is free.
func (p *SessionPool) Acquire() *Session {
	return <-p.sessions
}

// Release returns a healthy session to the pool.
func (p *SessionPool) Release(s *Session) {
	p.sessions <- s
}

// Discard drops a poisoned session and refills its slot with a fresh
// client and jar, so transport-level corruption never outlives one fetch.
func (p *SessionPool) Discard(s *Session) {
	s.Client.CloseIdleConnections()
	p.logger.Debug("session discarded, replacing with a fresh client")
	p.sessions <- p.newSession()
}

// Size returns the pool capacity.
func (p *SessionPool) Size() int {
	return cap(p.sessions)
}

// Close drains the pool and shuts down every idle connection. All sessions
// must be back in the pool when Close is called.
func (p *SessionPool) Close() {
	for i := 0; i < cap(p.sessions); i++ {
		s := <-p.sessions
		s.Client.CloseIdleConnections()
	}
	close(p.sessions)
}
