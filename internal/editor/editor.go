// Package editor holds the state behind the create-post form and the inline
// edit/delete actions on each post card.
package editor

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"

	"github.com/rexlx/drizzle/internal"
	"github.com/rexlx/drizzle/internal/api"
)

const (
	MsgNoFile       = "Please select a file"
	MsgCreateFailed = "Failed to create post"
	MsgUpdateFailed = "Failed to update post"
	MsgDeleteFailed = "Failed to delete post"

	MsgCreated = "Post created successfully!"
	MsgUpdated = "Post updated successfully!"
	MsgDeleted = "Post deleted successfully!"

	ConfirmDelete = "Are you sure you want to delete this post?"
)

var (
	ErrNoFile = errors.New("no file selected")
	ErrBusy   = errors.New("a request is already in flight")
	ErrClosed = errors.New("editor is closed")
)

// Poster is the part of the API client the editors call.
type Poster interface {
	UploadPost(ctx context.Context, file internal.File, caption string) (internal.Post, error)
	UpdatePost(ctx context.Context, postID string, upd api.PostUpdate) (internal.Post, error)
	DeletePost(ctx context.Context, postID string) (internal.DeleteResult, error)
}

// Hooks connect an editor to the rest of the client.
type Hooks struct {
	// Refresh runs once after every successful mutation.
	Refresh func(ctx context.Context)
	// Unauthorized runs when the API rejects the session; it is expected to
	// log out and go to the auth view.
	Unauthorized func()
	Logger       *log.Logger
}

func (h Hooks) withDefaults() Hooks {
	if h.Refresh == nil {
		h.Refresh = func(context.Context) {}
	}
	if h.Unauthorized == nil {
		h.Unauthorized = func() {}
	}
	if h.Logger == nil {
		h.Logger = log.New(io.Discard, "", 0)
	}
	return h
}

type Editor struct {
	mu        sync.Mutex
	poster    Poster
	previewer Previewer
	hooks     Hooks

	post    *internal.Post // nil in create mode
	caption string
	file    *internal.File
	preview *Preview
	errMsg  string
	busy    bool
	closed  bool
	// selection counts SelectFile calls so a slow preview cannot land on a
	// newer pick.
	selection uint64
	// saved gets the server's copy after a successful edit, before Refresh.
	saved func(internal.Post)
}

// NewCreate returns an empty create-post form.
func NewCreate(p Poster, pv Previewer, hooks Hooks) *Editor {
	return &Editor{poster: p, previewer: pv, hooks: hooks.withDefaults()}
}

// NewEdit returns a form for post, prefilled with its caption.
func NewEdit(p Poster, pv Previewer, hooks Hooks, post internal.Post) *Editor {
	e := NewCreate(p, pv, hooks)
	e.post = &post
	e.caption = post.Caption
	return e
}

func (e *Editor) Editing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.post != nil
}

func (e *Editor) Caption() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.caption
}

func (e *Editor) SetCaption(caption string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.caption = caption
}

func (e *Editor) File() *internal.File {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.file
}

func (e *Editor) Preview() *Preview {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.preview
}

// Err is the message to show under the form, or "".
func (e *Editor) Err() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errMsg
}

func (e *Editor) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.busy
}

// Close marks the form as gone. Pending previews are dropped.
func (e *Editor) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	e.selection++
}

// SelectFile records file right away and then renders its preview. The
// preview is kept only if no other file was picked meanwhile and the editor
// is still open. A file the previewer rejects is dropped again.
func (e *Editor) SelectFile(ctx context.Context, file internal.File) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.selection++
	sel := e.selection
	e.file = &file
	e.preview = nil
	e.errMsg = ""
	e.mu.Unlock()

	if e.previewer == nil {
		return nil
	}
	pv, err := e.previewer.Preview(ctx, file)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || sel != e.selection {
		return nil
	}
	if err != nil {
		e.hooks.Logger.Printf("preview %s: %v", file.Name, err)
		if errors.Is(err, ErrNotMedia) {
			e.file = nil
			e.errMsg = ErrNotMedia.Error()
		}
		return err
	}
	e.preview = &pv
	return nil
}

// ClearFile drops the picked file and its preview.
func (e *Editor) ClearFile() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selection++
	e.file = nil
	e.preview = nil
}

// Submit creates or updates the post. Creating without a file fails with
// ErrNoFile before anything is sent.
func (e *Editor) Submit(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	if e.busy {
		e.mu.Unlock()
		return ErrBusy
	}
	if e.post == nil && e.file == nil {
		e.errMsg = MsgNoFile
		e.mu.Unlock()
		return ErrNoFile
	}
	e.busy = true
	e.errMsg = ""
	caption := e.caption
	var file *internal.File
	if e.file != nil {
		f := *e.file
		file = &f
	}
	post := e.post
	e.mu.Unlock()

	var (
		saved    internal.Post
		err      error
		fallback = MsgCreateFailed
	)
	if post == nil {
		saved, err = e.poster.UploadPost(ctx, *file, caption)
	} else {
		fallback = MsgUpdateFailed
		saved, err = e.poster.UpdatePost(ctx, post.ID, api.PostUpdate{Caption: &caption, File: file})
	}

	e.mu.Lock()
	e.busy = false
	if err != nil {
		if api.IsUnauthorized(err) {
			e.mu.Unlock()
			e.hooks.Unauthorized()
			return err
		}
		e.errMsg = api.Message(err, fallback)
		e.mu.Unlock()
		e.hooks.Logger.Printf("submit: %v", err)
		return err
	}

	e.selection++
	e.file = nil
	e.preview = nil
	onSaved := e.saved
	if post == nil {
		e.caption = ""
	} else {
		// an empty body still means the caption we sent was stored
		if saved.ID == "" {
			saved = *post
			saved.Caption = caption
		}
		e.post = &saved
		e.caption = saved.Caption
	}
	e.mu.Unlock()

	if onSaved != nil && post != nil {
		onSaved(saved)
	}
	e.hooks.Refresh(ctx)
	return nil
}
