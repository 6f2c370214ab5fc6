package mockapi

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rexlx/drizzle/internal"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// StoredPost is a post plus the media bytes behind its URL.
type StoredPost struct {
	internal.Post
	ContentType string
	Data        []byte
}

type Database interface {
	StoreUser(user User) error
	GetUser(userID string) (User, error)
	GetUserByEmail(email string) (User, error)
	StorePost(post StoredPost) error
	GetPost(postID string) (StoredPost, error)
	DeletePost(postID string) error
	// ListPosts returns posts newest first.
	ListPosts() ([]StoredPost, error)
}

type MemoryDB struct {
	mu    sync.RWMutex
	users map[string]User
	posts map[string]StoredPost
}

func NewMemoryDB() *MemoryDB {
	return &MemoryDB{
		users: make(map[string]User),
		posts: make(map[string]StoredPost),
	}
}

// StoreUser inserts a user; emails are unique, case-insensitively.
func (db *MemoryDB) StoreUser(user User) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, u := range db.users {
		if u.ID != user.ID && strings.EqualFold(u.Email, user.Email) {
			return ErrExists
		}
	}
	db.users[user.ID] = user
	return nil
}

func (db *MemoryDB) GetUser(userID string) (User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	u, ok := db.users[userID]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

func (db *MemoryDB) GetUserByEmail(email string) (User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, u := range db.users {
		if strings.EqualFold(u.Email, email) {
			return u, nil
		}
	}
	return User{}, ErrNotFound
}

func (db *MemoryDB) StorePost(post StoredPost) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.posts[post.ID] = post
	return nil
}

func (db *MemoryDB) GetPost(postID string) (StoredPost, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.posts[postID]
	if !ok {
		return StoredPost{}, ErrNotFound
	}
	return p, nil
}

func (db *MemoryDB) DeletePost(postID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.posts[postID]; !ok {
		return ErrNotFound
	}
	delete(db.posts, postID)
	return nil
}

func (db *MemoryDB) ListPosts() ([]StoredPost, error) {
	db.mu.RLock()
	out := make([]StoredPost, 0, len(db.posts))
	for _, p := range db.posts {
		out = append(out, p)
	}
	db.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt.Time) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt.Time)
	})
	return out, nil
}
