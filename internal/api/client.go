package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/rexlx/drizzle/internal"
	"golang.org/x/time/rate"
)

const DefaultBaseURL = "http://localhost:8000"

// Tokens is the slice of the session store the client needs.
type Tokens interface {
	Token() string
	Login(token string)
	Logout()
}

type Client struct {
	BaseURL string
	HTTP    *http.Client
	Session Tokens
	Logger  *log.Logger

	limiter *rate.Limiter
}

type Option func(*Client)

// WithHTTPClient uses hc as the base transport. hc itself is not modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		cp := *hc
		c.HTTP = &cp
	}
}

// WithLogger logs one line per request to l. A nil l keeps the default.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.Logger = l
		}
	}
}

// WithRateLimit paces outgoing requests with a token bucket. Requests wait
// for a token rather than fail, and give up only when their context ends.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

func New(baseURL string, sess Tokens, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{},
		Session: sess,
		Logger:  log.New(io.Discard, "", 0),
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.HTTP.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	c.HTTP.Transport = &bearerTransport{
		base:    base,
		tokens:  c.Session,
		limiter: c.limiter,
		logger:  c.Logger,
	}
	return c
}

func (c *Client) Register(ctx context.Context, email, password string) (internal.User, error) {
	var user internal.User
	body, err := json.Marshal(internal.RegisterRequest{Email: email, Password: password})
	if err != nil {
		return user, err
	}
	err = c.do(ctx, http.MethodPost, "/auth/register", bytes.NewReader(body), "application/json", &user)
	return user, err
}

// Login exchanges credentials for a token and stores it in the session.
func (c *Client) Login(ctx context.Context, email, password string) (internal.AuthResponse, error) {
	var out internal.AuthResponse
	form := url.Values{}
	form.Set("username", email)
	form.Set("password", password)

	err := c.do(ctx, http.MethodPost, "/auth/login", strings.NewReader(form.Encode()), "application/x-www-form-urlencoded", &out)
	if err != nil {
		return out, err
	}
	if out.AccessToken == "" {
		return out, fmt.Errorf("login: server returned no access token")
	}
	c.Session.Login(out.AccessToken)
	return out, nil
}

// Logout drops the local session. There is no server call.
func (c *Client) Logout() {
	c.Session.Logout()
}

// Feed returns the posts in the order the server sent them.
func (c *Client) Feed(ctx context.Context) ([]internal.Post, error) {
	var out internal.FeedResponse
	if err := c.do(ctx, http.MethodGet, "/feed", nil, "", &out); err != nil {
		return nil, err
	}
	if out.Posts == nil {
		out.Posts = []internal.Post{}
	}
	return out.Posts, nil
}

func (c *Client) UploadPost(ctx context.Context, file internal.File, caption string) (internal.Post, error) {
	var post internal.Post
	body, contentType, err := newForm().
		file("file", &file).
		field("caption", &caption).
		finish()
	if err != nil {
		return post, fmt.Errorf("upload: %w", err)
	}
	err = c.do(ctx, http.MethodPost, "/upload", body, contentType, &post)
	return post, err
}

// PostUpdate carries the parts of a post to change. Nil fields are left out
// of the request; a nil File keeps the existing media.
type PostUpdate struct {
	Caption *string
	File    *internal.File
}

func (c *Client) UpdatePost(ctx context.Context, postID string, upd PostUpdate) (internal.Post, error) {
	var post internal.Post
	body, contentType, err := newForm().
		field("caption", upd.Caption).
		file("file", upd.File).
		finish()
	if err != nil {
		return post, fmt.Errorf("update: %w", err)
	}
	err = c.do(ctx, http.MethodPut, "/posts/"+url.PathEscape(postID), body, contentType, &post)
	return post, err
}

func (c *Client) DeletePost(ctx context.Context, postID string) (internal.DeleteResult, error) {
	var out internal.DeleteResult
	err := c.do(ctx, http.MethodDelete, "/posts/"+url.PathEscape(postID), nil, "", &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
