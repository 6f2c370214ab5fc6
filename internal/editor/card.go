package editor

import (
	"context"
	"sync"

	"github.com/rexlx/drizzle/internal"
	"github.com/rexlx/drizzle/internal/api"
)

type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

type ConfirmFunc func(ctx context.Context, message string) bool

func (f ConfirmFunc) Confirm(ctx context.Context, message string) bool {
	return f(ctx, message)
}

// Card is one post in the feed: read-only until BeginEdit, then backed by an
// edit form until Save succeeds or Cancel.
type Card struct {
	mu        sync.Mutex
	post      internal.Post
	poster    Poster
	previewer Previewer
	confirm   Confirmer
	hooks     Hooks

	editor   *Editor
	deleting bool
	errMsg   string
}

func NewCard(post internal.Post, p Poster, pv Previewer, confirm Confirmer, hooks Hooks) *Card {
	return &Card{
		post:      post,
		poster:    p,
		previewer: pv,
		confirm:   confirm,
		hooks:     hooks.withDefaults(),
	}
}

func (c *Card) Post() internal.Post {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.post
}

// SetPost replaces the server copy after a refresh. An open edit form keeps
// what the user typed.
func (c *Card) SetPost(post internal.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.post = post
}

func (c *Card) Editing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor != nil
}

// Editor is the open edit form, or nil.
func (c *Card) Editor() *Editor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editor
}

// Caption is the caption the card shows: the form's while editing, the
// server's otherwise.
func (c *Card) Caption() string {
	c.mu.Lock()
	ed := c.editor
	caption := c.post.Caption
	c.mu.Unlock()
	if ed != nil {
		return ed.Caption()
	}
	return caption
}

func (c *Card) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// BeginEdit opens a form prefilled with the current server caption. Calling
// it while already editing returns the open form.
func (c *Card) BeginEdit() *Editor {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editor == nil {
		ed := NewEdit(c.poster, c.previewer, c.hooks, c.post)
		ed.saved = func(post internal.Post) { c.saved(ed, post) }
		c.editor = ed
		c.errMsg = ""
	}
	return c.editor
}

// saved closes ed and takes the server's copy. It runs before the refresh
// so a newer copy from the feed replaces it.
func (c *Card) saved(ed *Editor, post internal.Post) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editor == ed {
		c.editor = nil
		ed.Close()
	}
	c.post = post
}

// Cancel closes the form, dropping its caption, file and preview.
func (c *Card) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.editor != nil {
		c.editor.Close()
		c.editor = nil
	}
}

// Save submits the edit form and leaves edit mode on success. On failure the
// form stays open with its message set.
func (c *Card) Save(ctx context.Context) error {
	c.mu.Lock()
	ed := c.editor
	c.mu.Unlock()
	if ed == nil {
		return ErrClosed
	}

	return ed.Submit(ctx)
}

// Delete asks for confirmation and deletes the post. It reports false with a
// nil error when the user declined.
func (c *Card) Delete(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.deleting {
		c.mu.Unlock()
		return false, ErrBusy
	}
	// set before confirming; a second Delete gets ErrBusy
	c.deleting = true
	id := c.post.ID
	c.mu.Unlock()

	if c.confirm != nil && !c.confirm.Confirm(ctx, ConfirmDelete) {
		c.mu.Lock()
		c.deleting = false
		c.mu.Unlock()
		return false, nil
	}

	c.mu.Lock()
	c.errMsg = ""
	c.mu.Unlock()

	_, err := c.poster.DeletePost(ctx, id)

	c.mu.Lock()
	c.deleting = false
	if err != nil {
		if api.IsUnauthorized(err) {
			c.mu.Unlock()
			c.hooks.Unauthorized()
			return false, err
		}
		c.errMsg = api.Message(err, MsgDeleteFailed)
		c.mu.Unlock()
		c.hooks.Logger.Printf("delete %s: %v", id, err)
		return false, err
	}
	c.mu.Unlock()

	c.hooks.Refresh(ctx)
	return true, nil
}

func (c *Card) Busy() bool {
	c.mu.Lock()
	ed := c.editor
	deleting := c.deleting
	c.mu.Unlock()
	return deleting || (ed != nil && ed.Busy())
}
