package mockapi

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rexlx/drizzle/internal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	user := User{ID: "u1", Email: "a@b.com"}
	token, err := GenerateJWT(user, "k1", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT(token, "k1")
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.Subject)
	assert.Equal(t, "a@b.com", claims.Email)

	_, err = ValidateJWT(token, "other")
	assert.Error(t, err)

	expired, err := GenerateJWT(user, "k1", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired, "k1")
	assert.Error(t, err)
}

func TestPasswordMatches(t *testing.T) {
	var u User
	require.NoError(t, u.SetPassword("secret"))
	ok, err := u.PasswordMatches("secret")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = u.PasswordMatches("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListPostsNewestFirst(t *testing.T) {
	db := NewMemoryDB()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, db.StorePost(StoredPost{Post: internal.Post{
			ID:        id,
			CreatedAt: internal.Timestamp{Time: base.Add(time.Duration(i) * time.Minute)},
		}}))
	}
	posts, err := db.ListPosts()
	require.NoError(t, err)
	require.Len(t, posts, 3)
	assert.Equal(t, "c", posts[0].ID)
	assert.Equal(t, "a", posts[2].ID)

	assert.ErrorIs(t, db.DeletePost("zzz"), ErrNotFound)
}

func TestDuplicateEmailIgnoresCase(t *testing.T) {
	db := NewMemoryDB()
	require.NoError(t, db.StoreUser(User{ID: "1", Email: "A@b.com"}))
	assert.ErrorIs(t, db.StoreUser(User{ID: "2", Email: "a@B.com"}), ErrExists)
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	s := NewServer(Config{Key: "k", RateLimit: 0.001, Burst: 2}, nil, nil)
	h := s.Handler()

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		h.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)

	// another address has its own bucket
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "10.0.0.2:5555"
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestPruneDropsIdleVisitors(t *testing.T) {
	rl := NewRateLimiter(1, 1)
	rl.ttl = 0
	rl.getLimiter("10.0.0.1")
	time.Sleep(time.Millisecond)
	assert.Equal(t, 1, rl.Prune())
	assert.Equal(t, 0, rl.Prune())
}

type harness struct {
	t *testing.T
	h http.Handler
}

func newHarness(t *testing.T) *harness {
	return &harness{t: t, h: NewServer(Config{Key: "test-key", PublicURL: "http://media.test"}, nil, nil).Handler()}
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.h.ServeHTTP(rec, req)
	return rec
}

func (h *harness) token(email string) string {
	h.t.Helper()
	body, _ := json.Marshal(internal.RegisterRequest{Email: email, Password: "pw"})
	rec := h.serve(httptest.NewRequest(http.MethodPost, "/auth/register", bytes.NewReader(body)))
	require.Equal(h.t, http.StatusCreated, rec.Code)

	form := url.Values{"username": {email}, "password": {"pw"}}
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = h.serve(req)
	require.Equal(h.t, http.StatusOK, rec.Code)

	var auth internal.AuthResponse
	require.NoError(h.t, json.NewDecoder(rec.Body).Decode(&auth))
	return auth.AccessToken
}

func (h *harness) upload(token, name string, data []byte) internal.Post {
	h.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(h.t, mw.WriteField("caption", "cap"))
	fw, err := mw.CreateFormFile("file", name)
	require.NoError(h.t, err)
	_, _ = fw.Write(data)
	require.NoError(h.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := h.serve(req)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())

	var post internal.Post
	require.NoError(h.t, json.NewDecoder(rec.Body).Decode(&post))
	return post
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	h := newHarness(t)
	rec := h.serve(httptest.NewRequest(http.MethodGet, "/feed", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"detail": "Not authenticated"}`, rec.Body.String())
}

func TestMediaIsServed(t *testing.T) {
	h := newHarness(t)
	tok := h.token("a@b.com")
	// CreateFormFile always sends application/octet-stream, so the type comes
	// from the extension.
	post := h.upload(tok, "cat.gif", []byte("GIF89a...."))
	assert.Equal(t, internal.FileTypeImage, post.FileType)
	assert.Equal(t, "http://media.test/media/"+post.ID, post.URL)

	rec := h.serve(httptest.NewRequest(http.MethodGet, "/media/"+post.ID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
	got, _ := io.ReadAll(rec.Body)
	assert.Equal(t, []byte("GIF89a...."), got)

	rec = h.serve(httptest.NewRequest(http.MethodGet, "/media/nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestOnlyOwnerMayChangePost(t *testing.T) {
	h := newHarness(t)
	owner := h.token("owner@b.com")
	other := h.token("other@b.com")
	post := h.upload(owner, "clip.mp4", []byte("....ftypisom"))
	assert.Equal(t, internal.FileTypeVideo, post.FileType)

	req := httptest.NewRequest(http.MethodDelete, "/posts/"+post.ID, nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rec := h.serve(req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"detail": "Not authorized to delete this post"}`, rec.Body.String())

	req = httptest.NewRequest(http.MethodDelete, "/posts/"+post.ID, nil)
	req.Header.Set("Authorization", "Bearer "+owner)
	rec = h.serve(req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/posts/"+post.ID, nil)
	req.Header.Set("Authorization", "Bearer "+owner)
	rec = h.serve(req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUploadWithoutFile(t *testing.T) {
	h := newHarness(t)
	tok := h.token("a@b.com")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("caption", "no file"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := h.serve(req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "Field required")
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", BearerToken(req))
	req.Header.Set("Authorization", "bearer abc ")
	assert.Equal(t, "abc", BearerToken(req))
	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", BearerToken(req))
}
