// Package route decides which view the client shows.
package route

import (
	"io"
	"log"
	"sync"
)

type Route string

const (
	Auth Route = "/auth"
	Feed Route = "/"
)

type Authenticator interface {
	IsAuthenticated() bool
}

// Guard resolves want against the session. The auth view is always
// reachable; anything else needs a session and falls back to Auth.
func Guard(sess Authenticator, want Route) Route {
	if want == Auth {
		return Auth
	}
	if sess == nil || !sess.IsAuthenticated() {
		return Auth
	}
	return Feed
}

// Router runs Guard on every navigation and hands the result to render. It
// does not watch the session; a token that disappears is only noticed on the
// next Navigate.
type Router struct {
	mu      sync.Mutex
	session Authenticator
	render  func(Route)
	current Route
	logger  *log.Logger
}

func NewRouter(sess Authenticator, render func(Route), logger *log.Logger) *Router {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if render == nil {
		render = func(Route) {}
	}
	return &Router{session: sess, render: render, logger: logger}
}

// Navigate renders the guarded version of want and returns it.
func (r *Router) Navigate(want Route) Route {
	got := Guard(r.session, want)
	r.mu.Lock()
	r.current = got
	r.mu.Unlock()
	if got != want {
		r.logger.Printf("navigate %s -> %s", want, got)
	}
	r.render(got)
	return got
}

// Current is the last rendered route, "" before the first navigation.
func (r *Router) Current() Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}
