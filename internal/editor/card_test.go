package editor

import (
	"context"
	"strings"
	"testing"

	"github.com/rexlx/drizzle/internal"
	"github.com/rexlx/drizzle/internal/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func answer(yes bool) ConfirmFunc {
	return func(context.Context, string) bool { return yes }
}

func TestCancelRestoresCaption(t *testing.T) {
	p := &fakePoster{}
	var n counters
	c := NewCard(internal.Post{ID: "p1", Caption: "original"}, p, stubPreview, answer(true), n.hooks())

	ed := c.BeginEdit()
	assert.True(t, c.Editing())
	assert.Equal(t, "original", ed.Caption())

	ed.SetCaption("scribbles")
	require.NoError(t, ed.SelectFile(context.Background(), internal.FileFromBytes("new.png", nil)))
	assert.Equal(t, "scribbles", c.Caption())

	c.Cancel()
	assert.False(t, c.Editing())
	assert.Equal(t, "original", c.Caption())

	ed = c.BeginEdit()
	assert.Equal(t, "original", ed.Caption())
	assert.Nil(t, ed.File())
	assert.Nil(t, ed.Preview())
	assert.Empty(t, p.Calls())
}

func TestSaveSendsCaptionAndOptionalFile(t *testing.T) {
	p := &fakePoster{}
	var n counters
	c := NewCard(internal.Post{ID: "p1", Caption: "old"}, p, stubPreview, answer(true), n.hooks())

	ed := c.BeginEdit()
	ed.SetCaption("new")
	require.NoError(t, c.Save(context.Background()))

	calls := p.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "update", calls[0].op)
	assert.Equal(t, "p1", calls[0].id)
	assert.Equal(t, "new", *calls[0].caption)
	assert.Empty(t, calls[0].file, "no file picked, existing media kept")

	assert.False(t, c.Editing())
	assert.Equal(t, "new", c.Caption())
	assert.Equal(t, 1, n.refreshes)

	ed = c.BeginEdit()
	require.NoError(t, ed.SelectFile(context.Background(), internal.FileFromBytes("swap.mp4", nil)))
	require.NoError(t, c.Save(context.Background()))
	calls = p.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, "swap.mp4", calls[1].file)
	assert.Equal(t, 2, n.refreshes)
}

func TestSaveFailureStaysInEditMode(t *testing.T) {
	p := &fakePoster{err: &api.Error{Status: 403, Detail: "Not authorized to update this post"}}
	var n counters
	c := NewCard(internal.Post{ID: "p1", Caption: "old"}, p, nil, answer(true), n.hooks())

	ed := c.BeginEdit()
	ed.SetCaption("new")
	assert.Error(t, c.Save(context.Background()))
	assert.True(t, c.Editing())
	assert.Equal(t, "Not authorized to update this post", ed.Err())
	assert.Equal(t, "new", c.Caption())
	assert.Equal(t, 0, n.refreshes)

	p.err = &api.Error{Status: 500}
	assert.Error(t, c.Save(context.Background()))
	assert.Equal(t, MsgUpdateFailed, ed.Err())
}

// trimmingPoster stores captions the way a server that normalises them would.
type trimmingPoster struct {
	fakePoster
}

func (p *trimmingPoster) UpdatePost(ctx context.Context, id string, upd api.PostUpdate) (internal.Post, error) {
	post, err := p.fakePoster.UpdatePost(ctx, id, upd)
	post.Caption = strings.TrimSpace(post.Caption)
	return post, err
}

func TestSaveKeepsServerCaption(t *testing.T) {
	c := NewCard(internal.Post{ID: "p1", Caption: "old"}, &trimmingPoster{}, nil, nil, Hooks{})

	c.BeginEdit().SetCaption("  typed  ")
	require.NoError(t, c.Save(context.Background()))
	assert.False(t, c.Editing())
	assert.Equal(t, "typed", c.Post().Caption)
	assert.Equal(t, "typed", c.BeginEdit().Caption())
}

func TestRefreshAfterSaveWins(t *testing.T) {
	var c *Card
	refreshed := internal.Post{ID: "p1", Caption: "from the feed"}
	hooks := Hooks{Refresh: func(context.Context) {
		c.SetPost(refreshed)
	}}
	c = NewCard(internal.Post{ID: "p1", Caption: "old"}, &trimmingPoster{}, nil, nil, hooks)

	c.BeginEdit().SetCaption("  typed  ")
	require.NoError(t, c.Save(context.Background()))
	assert.False(t, c.Editing())
	assert.Equal(t, refreshed, c.Post())

	ed := c.BeginEdit()
	ed.SetCaption("scribbles")
	c.Cancel()
	assert.Equal(t, "from the feed", c.BeginEdit().Caption())
}

func TestSetPostUpdatesServerCopy(t *testing.T) {
	c := NewCard(internal.Post{ID: "p1", Caption: "a"}, &fakePoster{}, nil, nil, Hooks{})
	c.SetPost(internal.Post{ID: "p1", Caption: "b"})
	assert.Equal(t, "b", c.Caption())
	assert.Equal(t, "b", c.BeginEdit().Caption())
}

func TestDeclinedDeleteSendsNothing(t *testing.T) {
	p := &fakePoster{}
	var n counters
	c := NewCard(internal.Post{ID: "p1"}, p, nil, answer(false), n.hooks())

	deleted, err := c.Delete(context.Background())
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Empty(t, p.Calls())
	assert.Equal(t, 0, n.refreshes)
}

func TestDeleteRefreshesOnce(t *testing.T) {
	p := &fakePoster{}
	var n counters
	var asked string
	c := NewCard(internal.Post{ID: "p1"}, p, nil, ConfirmFunc(func(_ context.Context, msg string) bool {
		asked = msg
		return true
	}), n.hooks())

	deleted, err := c.Delete(context.Background())
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.Equal(t, ConfirmDelete, asked)
	assert.Equal(t, []call{{op: "delete", id: "p1"}}, p.Calls())
	assert.Equal(t, 1, n.refreshes)
}

func TestDeleteFailure(t *testing.T) {
	p := &fakePoster{err: &api.Error{Status: 500}}
	var n counters
	c := NewCard(internal.Post{ID: "p1"}, p, nil, answer(true), n.hooks())

	deleted, err := c.Delete(context.Background())
	assert.Error(t, err)
	assert.False(t, deleted)
	assert.Equal(t, MsgDeleteFailed, c.Err())
	assert.Equal(t, 0, n.refreshes)
	assert.False(t, c.Busy())

	p.err = &api.Error{Status: 401}
	_, err = c.Delete(context.Background())
	assert.True(t, api.IsUnauthorized(err))
	assert.Equal(t, 1, n.unauthorized)
}

func TestDeleteWhileConfirmingIsBusy(t *testing.T) {
	p := &fakePoster{}
	asking := make(chan struct{})
	reply := make(chan bool)
	c := NewCard(internal.Post{ID: "p1"}, p, nil, ConfirmFunc(func(context.Context, string) bool {
		asking <- struct{}{}
		return <-reply
	}), Hooks{})

	done := make(chan error, 1)
	remove := func() {
		_, err := c.Delete(context.Background())
		done <- err
	}

	go remove()
	<-asking
	_, err := c.Delete(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.True(t, c.Busy())
	reply <- false
	require.NoError(t, <-done)
	assert.Empty(t, p.Calls())
	assert.False(t, c.Busy(), "declining frees the card")

	go remove()
	<-asking
	reply <- true
	require.NoError(t, <-done)
	assert.Equal(t, []call{{op: "delete", id: "p1"}}, p.Calls())
}
