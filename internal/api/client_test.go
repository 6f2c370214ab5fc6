package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rexlx/drizzle/internal"
	"github.com/rexlx/drizzle/internal/mockapi"
	"github.com/rexlx/drizzle/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) (*Client, *session.Store) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	sess := session.New(session.NewMemoryBackend())
	return New(srv.URL, sess, opts...), sess
}

func TestLoginPersistsTokenAndFeedSendsBearer(t *testing.T) {
	var gotAuth, gotUser, gotPass, gotType string
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		gotType = r.Header.Get("Content-Type")
		gotUser = r.FormValue("username")
		gotPass = r.FormValue("password")
		_ = json.NewEncoder(w).Encode(internal.AuthResponse{AccessToken: "tok1", TokenType: "bearer"})
	})
	mux.HandleFunc("GET /feed", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = io.WriteString(w, `{"posts": []}`)
	})
	c, sess := newTestClient(t, mux)

	resp, err := c.Login(context.Background(), "a@b.com", "x")
	require.NoError(t, err)
	assert.Equal(t, "tok1", resp.AccessToken)
	assert.Equal(t, "bearer", resp.TokenType)
	assert.Equal(t, "application/x-www-form-urlencoded", gotType)
	assert.Equal(t, "a@b.com", gotUser)
	assert.Equal(t, "x", gotPass)

	assert.True(t, sess.IsAuthenticated())
	assert.Equal(t, "tok1", sess.Token())

	posts, err := c.Feed(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, posts)
	assert.Empty(t, posts)
	assert.Equal(t, "Bearer tok1", gotAuth)
}

func TestBearerOnEveryRequest(t *testing.T) {
	var gotAuth string
	c, sess := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id": "u1", "email": "a@b.com"}`)
	}))

	_, err := c.Register(context.Background(), "a@b.com", "x")
	require.NoError(t, err)
	assert.Empty(t, gotAuth, "no token, no header")

	sess.Login("stale")
	user, err := c.Register(context.Background(), "a@b.com", "x")
	require.NoError(t, err)
	assert.Equal(t, internal.User{ID: "u1", Email: "a@b.com"}, user)
	assert.Equal(t, "Bearer stale", gotAuth, "registration is not exempt")
}

func TestNilLoggerKeepsDefault(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"posts": []}`)
	}), WithLogger(nil))
	require.NotNil(t, c.Logger)

	_, err := c.Feed(context.Background())
	assert.NoError(t, err)
}

func TestFeedKeepsServerOrder(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"posts": [
			{"id": "b", "caption": "old", "url": "http://x/b", "file_type": "image", "file_name": "b.png", "created_at": "2024-01-01T00:00:00"},
			{"id": "a", "caption": "new", "url": "http://x/a", "file_type": "video", "file_name": "a.mp4", "created_at": "2025-06-01T10:00:00.123456+00:00"}
		]}`)
	}))

	posts, err := c.Feed(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, "b", posts[0].ID)
	assert.Equal(t, "a", posts[1].ID)
	assert.True(t, posts[1].IsVideo())
	assert.Equal(t, 2024, posts[0].CreatedAt.Year())
}

func TestErrorDetails(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"string detail", http.StatusBadRequest, `{"detail": "LOGIN_BAD_CREDENTIALS"}`, "LOGIN_BAD_CREDENTIALS"},
		{"validation list", http.StatusUnprocessableEntity, `{"detail": [{"loc": ["body", "file"], "msg": "Field required"}]}`, "Field required"},
		{"error body", http.StatusForbidden, `{"error": "forbidden", "status": 403}`, "forbidden"},
		{"no body", http.StatusInternalServerError, ``, "fallback"},
		{"html body", http.StatusBadGateway, `<html>bad gateway</html>`, "fallback"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, tc.body)
			}))

			_, err := c.DeletePost(context.Background(), "p1")
			require.Error(t, err)

			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.status, apiErr.Status)
			assert.Equal(t, tc.want, Message(err, "fallback"))
			assert.False(t, IsUnauthorized(err))
		})
	}
}

func TestUnauthorized(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"detail": "Not authenticated"}`)
	}))

	_, err := c.Feed(context.Background())
	assert.True(t, IsUnauthorized(err))
}

func TestTransportErrorIsNotAPIError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, session.New(session.NewMemoryBackend()))
	_, err := c.Feed(context.Background())
	require.Error(t, err)
	assert.False(t, IsUnauthorized(err))
	assert.Equal(t, "Failed to load feed", Message(err, "Failed to load feed"))
}

func TestUpdateSendsOnlySuppliedParts(t *testing.T) {
	var fields []string
	var files []string
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/posts/p1", r.URL.Path)
		fields, files = nil, nil
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) {
			return
		}
		for k := range r.MultipartForm.Value {
			fields = append(fields, k)
		}
		for k := range r.MultipartForm.File {
			files = append(files, k)
		}
		_, _ = io.WriteString(w, `{"id": "p1", "caption": "c", "file_type": "image"}`)
	}))

	caption := "new caption"
	_, err := c.UpdatePost(context.Background(), "p1", PostUpdate{Caption: &caption})
	require.NoError(t, err)
	assert.Equal(t, []string{"caption"}, fields)
	assert.Empty(t, files)

	f := internal.FileFromBytes("clip.mp4", []byte("not really a video"))
	_, err = c.UpdatePost(context.Background(), "p1", PostUpdate{File: &f})
	require.NoError(t, err)
	assert.Empty(t, fields)
	assert.Equal(t, []string{"file"}, files)
}

func TestUploadPartHeaders(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !assert.NoError(t, r.ParseMultipartForm(1<<20)) || !assert.Len(t, r.MultipartForm.File["file"], 1) {
			return
		}
		assert.Equal(t, "hello", r.FormValue("caption"))
		fh := r.MultipartForm.File["file"][0]
		assert.Equal(t, "cat.png", fh.Filename)
		assert.Equal(t, "image/png", fh.Header.Get("Content-Type"))
		_, _ = io.WriteString(w, `{"id": "p9", "caption": "hello", "file_type": "image", "file_name": "cat.png"}`)
	}))

	post, err := c.UploadPost(context.Background(), internal.FileFromBytes("cat.png", pngBytes), "hello")
	require.NoError(t, err)
	assert.Equal(t, "p9", post.ID)
}

func TestRateLimitHonoursContext(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"posts": []}`)
	}), WithRateLimit(0.01, 1))

	_, err := c.Feed(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Feed(ctx)
	assert.Error(t, err)
}

// 1x1 transparent PNG
var pngBytes = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
	0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
	0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
	0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}

func TestAgainstMockAPI(t *testing.T) {
	ctx := context.Background()
	mock := mockapi.NewServer(mockapi.Config{Key: "test-key"}, nil, nil)
	alice, aliceSess := newTestClient(t, mock.Handler())

	user, err := alice.Register(ctx, "alice@example.com", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)

	_, err = alice.Register(ctx, "alice@example.com", "pw")
	assert.Equal(t, "REGISTER_USER_ALREADY_EXISTS", Message(err, ""))

	_, err = alice.Login(ctx, "alice@example.com", "wrong")
	assert.Equal(t, "LOGIN_BAD_CREDENTIALS", Message(err, ""))
	assert.False(t, aliceSess.IsAuthenticated())

	_, err = alice.Login(ctx, "alice@example.com", "pw")
	require.NoError(t, err)
	claims, err := aliceSess.Claims()
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.Subject)

	posts, err := alice.Feed(ctx)
	require.NoError(t, err)
	assert.Empty(t, posts)

	first, err := alice.UploadPost(ctx, internal.FileFromBytes("cat.png", pngBytes), "first")
	require.NoError(t, err)
	assert.Equal(t, internal.FileTypeImage, first.FileType)
	assert.Equal(t, user.ID, first.UserID)

	second, err := alice.UploadPost(ctx, internal.FileFromBytes("clip.mp4", []byte("....ftypisom")), "second")
	require.NoError(t, err)
	assert.Equal(t, internal.FileTypeVideo, second.FileType)

	posts, err = alice.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, second.ID, posts[0].ID, "newest first")

	caption := "edited"
	updated, err := alice.UpdatePost(ctx, first.ID, PostUpdate{Caption: &caption})
	require.NoError(t, err)
	assert.Equal(t, "edited", updated.Caption)
	assert.Equal(t, "cat.png", updated.FileName, "file kept when none is sent")

	// a second user can see but not touch alice's posts
	bob, _ := newTestClient(t, mock.Handler())
	_, err = bob.Register(ctx, "bob@example.com", "pw")
	require.NoError(t, err)
	_, err = bob.Login(ctx, "bob@example.com", "pw")
	require.NoError(t, err)
	_, err = bob.DeletePost(ctx, first.ID)
	var apiErr *Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)

	res, err := alice.DeletePost(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, res.Success)

	posts, err = alice.Feed(ctx)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, second.ID, posts[0].ID)

	_, err = alice.UploadPost(ctx, internal.FileFromBytes("notes.txt", []byte("plain text")), "nope")
	assert.Equal(t, "Only image and video files are allowed", Message(err, ""))

	aliceSess.Login("garbage")
	_, err = alice.Feed(ctx)
	assert.True(t, IsUnauthorized(err))
}
