package api

import (
	"log"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// bearerTransport is the client's single request interceptor. Every request
// carries the current token when there is one; register and login are not
// exempt.
type bearerTransport struct {
	base    http.RoundTripper
	tokens  Tokens
	limiter *rate.Limiter
	logger  *log.Logger
}

func (t *bearerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}

	// RoundTrippers must not modify the caller's request
	if t.tokens != nil {
		if token := t.tokens.Token(); token != "" {
			req = req.Clone(req.Context())
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Printf("%s %s failed after %s: %v", req.Method, req.URL.Path, time.Since(start), err)
		return nil, err
	}
	t.logger.Printf("%s %s -> %d (%s)", req.Method, req.URL.Path, resp.StatusCode, time.Since(start))
	return resp, nil
}
