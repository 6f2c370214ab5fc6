// Package feed loads the post list and tracks what the feed view should show.
package feed

import (
	"context"
	"io"
	"log"
	"sync"

	"github.com/rexlx/drizzle/internal"
	"github.com/rexlx/drizzle/internal/api"
)

type State int

const (
	Idle State = iota
	Loading
	Loaded
	Failed
	Redirected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	case Redirected:
		return "redirected"
	}
	return "unknown"
}

const (
	MsgLoadFailed = "Failed to load feed"
	MsgEmpty      = "No posts yet. Be the first to post!"
)

type Feeder interface {
	Feed(ctx context.Context) ([]internal.Post, error)
}

type Session interface {
	IsAuthenticated() bool
	Logout()
}

// Snapshot is what observers see after every transition.
type Snapshot struct {
	State State
	Posts []internal.Post
	Err   string
}

func (s Snapshot) Empty() bool {
	return s.State == Loaded && len(s.Posts) == 0
}

type Controller struct {
	mu        sync.Mutex
	feeder    Feeder
	session   Session
	redirect  func()
	logger    *log.Logger
	observers []func(Snapshot)

	state  State
	posts  []internal.Post
	errMsg string
	// gen counts Load calls; a fetch only lands if it is still the newest.
	gen    uint64
	closed bool
}

// New builds a controller. redirect is called when the feed needs a login,
// either because there is no session or because the API answered 401.
func New(feeder Feeder, sess Session, redirect func(), logger *log.Logger) *Controller {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if redirect == nil {
		redirect = func() {}
	}
	return &Controller{
		feeder:   feeder,
		session:  sess,
		redirect: redirect,
		logger:   logger,
	}
}

// Subscribe registers fn for every later transition. fn runs on the
// goroutine that caused the transition with the controller locked, so it
// must not call back into the controller.
func (c *Controller) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, fn)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot()
}

func (c *Controller) snapshot() Snapshot {
	posts := make([]internal.Post, len(c.posts))
	copy(posts, c.posts)
	return Snapshot{State: c.state, Posts: posts, Err: c.errMsg}
}

// Load fetches the feed and blocks until the result is applied or dropped.
// It returns the fetch error, if any, after the state has been updated.
func (c *Controller) Load(ctx context.Context) error {
	if !c.session.IsAuthenticated() {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return nil
		}
		c.gen++
		c.set(Redirected, nil, "")
		c.mu.Unlock()
		c.redirect()
		return nil
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.set(Loading, c.posts, "")
	c.mu.Unlock()

	posts, err := c.feeder.Feed(ctx)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		c.logger.Printf("dropping stale feed result (generation %d)", gen)
		return err
	}
	switch {
	case err == nil:
		c.set(Loaded, posts, "")
		c.mu.Unlock()
		return nil
	case api.IsUnauthorized(err):
		c.set(Redirected, nil, "")
		c.mu.Unlock()
		c.logger.Printf("feed: session rejected, logging out")
		c.session.Logout()
		c.redirect()
		return err
	default:
		c.set(Failed, c.posts, MsgLoadFailed)
		c.mu.Unlock()
		c.logger.Printf("feed: %v", err)
		return err
	}
}

// Refresh refetches after a mutation. Its signature matches the callback the
// editors take.
func (c *Controller) Refresh(ctx context.Context) {
	_ = c.Load(ctx)
}

// Close detaches the controller from its view; results still in flight are
// dropped and observers are no longer called.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.observers = nil
}

// set must be called with c.mu held. Observers are notified synchronously
// while the lock is held so they see transitions in order.
func (c *Controller) set(state State, posts []internal.Post, errMsg string) {
	c.state = state
	c.posts = posts
	c.errMsg = errMsg
	snap := c.snapshot()
	for _, fn := range c.observers {
		fn(snap)
	}
}
