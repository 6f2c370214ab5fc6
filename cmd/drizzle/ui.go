package main

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/url"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/rexlx/drizzle/internal"
	"github.com/rexlx/drizzle/internal/api"
	"github.com/rexlx/drizzle/internal/editor"
	"github.com/rexlx/drizzle/internal/feed"
	"github.com/rexlx/drizzle/internal/route"
	"github.com/rexlx/drizzle/internal/session"
)

const (
	msgLoginFailed    = "Login failed"
	msgRegisterFailed = "Registration failed"
	dateLayout        = "Jan 2, 2006 3:04 PM"
)

// UI owns the window content. Everything here runs on the fyne goroutine
// except the network calls, which are started with go and report back
// through fyne.Do.
type UI struct {
	app     fyne.App
	window  fyne.Window
	client  *api.Client
	session *session.Store
	router  *route.Router
	logger  *log.Logger
	preview editor.Previewer

	feed   *feed.Controller
	create *editor.Editor
	cards  map[string]*editor.Card

	// feed view widgets, rebuilt by makeFeedScreen
	status   *fyne.Container
	postsBox *fyne.Container
}

func NewUI(a fyne.App, w fyne.Window, client *api.Client, sess *session.Store, logger *log.Logger) *UI {
	return &UI{
		app:     a,
		window:  w,
		client:  client,
		session: sess,
		logger:  logger,
		preview: editor.DataURIPreviewer{},
	}
}

// show is the router's render func.
func (u *UI) show(r route.Route) {
	u.closeFeed()
	switch r {
	case route.Feed:
		u.window.SetContent(u.makeFeedScreen())
	default:
		u.window.SetContent(u.makeAuthScreen())
	}
}

// navigate may be called from any goroutine.
func (u *UI) navigate(r route.Route) {
	fyne.Do(func() {
		u.router.Navigate(r)
	})
}

// expire ends the session after the API rejected it.
func (u *UI) expire() {
	u.logger.Println("session rejected by API, logging out")
	u.session.Logout()
	u.navigate(route.Auth)
}

func (u *UI) closeFeed() {
	if u.feed != nil {
		u.feed.Close()
		u.feed = nil
	}
	if u.create != nil {
		u.create.Close()
		u.create = nil
	}
	for _, c := range u.cards {
		c.Cancel()
	}
	u.cards = nil
}

func (u *UI) hooks() editor.Hooks {
	return editor.Hooks{
		Refresh:      u.feed.Refresh,
		Unauthorized: u.expire,
		Logger:       u.logger,
	}
}

// --- auth view ---

func (u *UI) makeAuthScreen() fyne.CanvasObject {
	emailEntry := widget.NewEntry()
	emailEntry.SetPlaceHolder("Email")

	passEntry := widget.NewPasswordEntry()
	passEntry.SetPlaceHolder("Password")

	errorLabel := widget.NewLabel("")
	errorLabel.Importance = widget.DangerImportance
	errorLabel.Wrapping = fyne.TextWrapWord
	errorLabel.Hide()

	activity := widget.NewActivity()
	activity.Hide()

	var loginBtn, registerBtn *widget.Button
	setBusy := func(busy bool) {
		if busy {
			loginBtn.Disable()
			registerBtn.Disable()
			activity.Show()
			activity.Start()
			return
		}
		loginBtn.Enable()
		registerBtn.Enable()
		activity.Stop()
		activity.Hide()
	}
	fail := func(msg string) {
		errorLabel.SetText(msg)
		errorLabel.Show()
		setBusy(false)
	}

	submit := func(register bool) {
		email := strings.TrimSpace(emailEntry.Text)
		password := passEntry.Text
		if email == "" || password == "" {
			fail("Email and password are required")
			return
		}
		errorLabel.Hide()
		setBusy(true)

		go func() {
			ctx := context.Background()
			if register {
				if _, err := u.client.Register(ctx, email, password); err != nil {
					u.logger.Printf("register %s: %v", email, err)
					fyne.Do(func() { fail(api.Message(err, msgRegisterFailed)) })
					return
				}
			}
			if _, err := u.client.Login(ctx, email, password); err != nil {
				u.logger.Printf("login %s: %v", email, err)
				fyne.Do(func() { fail(api.Message(err, msgLoginFailed)) })
				return
			}
			u.navigate(route.Feed)
		}()
	}

	loginBtn = widget.NewButton("Login", func() { submit(false) })
	loginBtn.Importance = widget.HighImportance
	registerBtn = widget.NewButton("Register", func() { submit(true) })
	passEntry.OnSubmitted = func(string) { submit(false) }

	form := container.NewVBox(
		widget.NewLabelWithStyle("drizzle", fyne.TextAlignCenter, fyne.TextStyle{Bold: true}),
		widget.NewSeparator(),
		emailEntry,
		passEntry,
		errorLabel,
		container.NewGridWithColumns(2, loginBtn, registerBtn),
		activity,
	)

	sized := container.NewGridWrap(fyne.NewSize(360, form.MinSize().Height), form)
	return container.NewCenter(sized)
}

// --- feed view ---

func (u *UI) makeFeedScreen() fyne.CanvasObject {
	u.feed = feed.New(u.client, u.session, func() { u.navigate(route.Auth) }, u.logger)
	u.create = editor.NewCreate(u.client, u.preview, u.hooks())
	u.cards = make(map[string]*editor.Card)

	ctrl := u.feed
	ctrl.Subscribe(func(s feed.Snapshot) {
		fyne.Do(func() {
			if u.feed == ctrl {
				u.renderFeed(s)
			}
		})
	})

	logoutBtn := widget.NewButtonWithIcon("Logout", theme.LogoutIcon(), func() {
		u.session.Logout()
		u.router.Navigate(route.Auth)
	})
	header := container.NewBorder(nil, nil,
		widget.NewLabelWithStyle("drizzle", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		container.NewHBox(widget.NewLabel(u.whoami()), logoutBtn),
	)

	u.status = container.NewVBox()
	u.postsBox = container.NewVBox()
	body := container.NewVBox(
		u.makeCreateForm(u.create),
		widget.NewSeparator(),
		u.status,
		u.postsBox,
	)

	go func() {
		_ = ctrl.Load(context.Background())
	}()

	return container.NewBorder(
		container.NewPadded(header), nil, nil, nil,
		container.NewVScroll(container.NewPadded(body)),
	)
}

func (u *UI) whoami() string {
	claims, err := u.session.Claims()
	if err != nil || claims.Subject == "" {
		return "signed in"
	}
	if claims.ExpiresAt.IsZero() {
		return "user " + claims.Subject
	}
	return "user " + claims.Subject + " until " + claims.ExpiresAt.Local().Format("15:04")
}

func (u *UI) rerender() {
	if u.feed != nil {
		u.renderFeed(u.feed.Snapshot())
	}
}

func (u *UI) renderFeed(s feed.Snapshot) {
	u.status.Objects = nil
	u.postsBox.Objects = nil

	switch s.State {
	case feed.Loading, feed.Idle:
		activity := widget.NewActivity()
		activity.Start()
		u.status.Add(container.NewCenter(activity))
	case feed.Failed:
		msg := widget.NewLabel(s.Err)
		msg.Importance = widget.DangerImportance
		u.status.Add(container.NewCenter(msg))
	case feed.Loaded:
		if s.Empty() {
			u.status.Add(container.NewCenter(widget.NewLabel(feed.MsgEmpty)))
		}
		u.syncCards(s.Posts)
		for _, p := range s.Posts {
			u.postsBox.Add(u.makePostCard(u.cards[p.ID]))
		}
	}

	u.status.Refresh()
	u.postsBox.Refresh()
}

// syncCards keeps one Card per shown post so an open edit form survives a
// refresh, and drops cards whose post is gone.
func (u *UI) syncCards(posts []internal.Post) {
	seen := make(map[string]bool, len(posts))
	for _, p := range posts {
		seen[p.ID] = true
		if c, ok := u.cards[p.ID]; ok {
			c.SetPost(p)
			continue
		}
		u.cards[p.ID] = editor.NewCard(p, u.client, u.preview, editor.ConfirmFunc(u.confirm), u.hooks())
	}
	for id, c := range u.cards {
		if !seen[id] {
			c.Cancel()
			delete(u.cards, id)
		}
	}
}

// confirm blocks the calling goroutine until the user answers.
func (u *UI) confirm(ctx context.Context, message string) bool {
	answer := make(chan bool, 1)
	fyne.Do(func() {
		dialog.ShowConfirm("Delete post", message, func(ok bool) { answer <- ok }, u.window)
	})
	select {
	case ok := <-answer:
		return ok
	case <-ctx.Done():
		return false
	}
}

func (u *UI) notify(msg string) {
	dialog.ShowInformation("drizzle", msg, u.window)
}

// pickFile opens the file dialog and hands the choice to ed off the UI
// goroutine. after runs on the UI goroutine once the preview is settled.
func (u *UI) pickFile(ed *editor.Editor, after func()) {
	fd := dialog.NewFileOpen(func(rc fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, u.window)
			return
		}
		if rc == nil {
			return
		}
		uri := rc.URI()
		rc.Close()

		file := internal.File{
			Name: uri.Name(),
			Open: func() (io.ReadCloser, error) {
				return storage.Reader(uri)
			},
		}
		go func() {
			_ = ed.SelectFile(context.Background(), file)
			fyne.Do(after)
		}()
	}, u.window)
	fd.SetFilter(storage.NewExtensionFileFilter(internal.MediaExtensions))
	fd.Show()
}

func previewObject(ed *editor.Editor) fyne.CanvasObject {
	pv := ed.Preview()
	name := ""
	if file := ed.File(); file != nil {
		name = file.Name
	}
	switch {
	case pv == nil:
		return widget.NewLabel(name)
	case pv.IsVideo():
		return widget.NewLabelWithStyle("video: "+name+" ("+pv.MIME+")", fyne.TextAlignLeading, fyne.TextStyle{Italic: true})
	}
	img := canvas.NewImageFromReader(bytes.NewReader(pv.Data), name)
	img.FillMode = canvas.ImageFillContain
	img.SetMinSize(fyne.NewSize(320, 240))
	return img
}

func errorLabel(msg string) *widget.Label {
	l := widget.NewLabel(msg)
	l.Importance = widget.DangerImportance
	l.Wrapping = fyne.TextWrapWord
	if msg == "" {
		l.Hide()
	}
	return l
}

// --- create form ---

func (u *UI) makeCreateForm(ed *editor.Editor) fyne.CanvasObject {
	caption := NewCaptionEntry("What's on your mind?")
	caption.OnChanged = ed.SetCaption

	previewBox := container.NewVBox(previewObject(ed))
	errLabel := errorLabel("")

	var postBtn *widget.Button
	refresh := func() {
		previewBox.Objects = []fyne.CanvasObject{previewObject(ed)}
		previewBox.Refresh()
		if msg := ed.Err(); msg != "" {
			errLabel.SetText(msg)
			errLabel.Show()
		} else {
			errLabel.Hide()
		}
		if ed.Busy() {
			postBtn.SetText("Posting...")
			postBtn.Disable()
		} else {
			postBtn.SetText("Post")
			postBtn.Enable()
		}
	}

	submit := func() {
		go func() {
			err := ed.Submit(context.Background())
			fyne.Do(func() {
				caption.SetText(ed.Caption())
				refresh()
				if err == nil {
					u.notify(editor.MsgCreated)
				}
			})
		}()
		// show the busy state straight away
		postBtn.SetText("Posting...")
		postBtn.Disable()
	}
	caption.OnSubmit = func(string) { submit() }

	chooseBtn := widget.NewButtonWithIcon("Image or Video", theme.FolderOpenIcon(), func() {
		u.pickFile(ed, refresh)
	})
	postBtn = widget.NewButton("Post", submit)
	postBtn.Importance = widget.HighImportance

	return widget.NewCard("New post", "", container.NewVBox(
		caption,
		chooseBtn,
		previewBox,
		errLabel,
		postBtn,
	))
}

// --- post cards ---

func mediaLink(p internal.Post) fyne.CanvasObject {
	label := p.FileName
	if label == "" {
		label = p.URL
	}
	if p.IsVideo() {
		label = "▶ " + label
	}
	target, err := url.Parse(p.URL)
	if err != nil || p.URL == "" {
		return widget.NewLabel(label)
	}
	return widget.NewHyperlink(label, target)
}

func (u *UI) makePostCard(c *editor.Card) fyne.CanvasObject {
	if ed := c.Editor(); ed != nil {
		return u.makeEditCard(c, ed)
	}
	p := c.Post()

	caption := widget.NewLabel(p.Caption)
	caption.Wrapping = fyne.TextWrapWord
	date := widget.NewLabelWithStyle(p.CreatedAt.Local().Format(dateLayout), fyne.TextAlignLeading, fyne.TextStyle{Italic: true})
	errLabel := errorLabel(c.Err())

	editBtn := widget.NewButtonWithIcon("Edit", theme.DocumentCreateIcon(), func() {
		c.BeginEdit()
		u.rerender()
	})
	var deleteBtn *widget.Button
	deleteBtn = widget.NewButtonWithIcon("Delete", theme.DeleteIcon(), func() {
		deleteBtn.Disable()
		go func() {
			deleted, _ := c.Delete(context.Background())
			fyne.Do(func() {
				if deleted {
					u.notify(editor.MsgDeleted)
				}
				u.rerender()
			})
		}()
	})
	deleteBtn.Importance = widget.DangerImportance
	if c.Busy() {
		editBtn.Disable()
		deleteBtn.Disable()
	}

	return widget.NewCard("", "", container.NewVBox(
		mediaLink(p),
		caption,
		date,
		errLabel,
		container.NewHBox(editBtn, deleteBtn),
	))
}

func (u *UI) makeEditCard(c *editor.Card, ed *editor.Editor) fyne.CanvasObject {
	caption := NewCaptionEntry("")
	caption.SetText(ed.Caption())
	caption.OnChanged = ed.SetCaption

	previewBox := container.NewVBox(previewObject(ed))
	errLabel := errorLabel(ed.Err())

	refresh := func() {
		previewBox.Objects = []fyne.CanvasObject{previewObject(ed)}
		previewBox.Refresh()
		if msg := ed.Err(); msg != "" {
			errLabel.SetText(msg)
			errLabel.Show()
		} else {
			errLabel.Hide()
		}
	}

	var updateBtn *widget.Button
	save := func() {
		updateBtn.SetText("Updating...")
		updateBtn.Disable()
		go func() {
			err := c.Save(context.Background())
			fyne.Do(func() {
				if err == nil {
					u.notify(editor.MsgUpdated)
					u.rerender()
					return
				}
				if api.IsUnauthorized(err) {
					return
				}
				updateBtn.SetText("Update")
				updateBtn.Enable()
				refresh()
			})
		}()
	}
	caption.OnSubmit = func(string) { save() }

	updateBtn = widget.NewButton("Update", save)
	updateBtn.Importance = widget.HighImportance
	cancelBtn := widget.NewButton("Cancel", func() {
		c.Cancel()
		u.rerender()
	})
	changeBtn := widget.NewButtonWithIcon("Change file (optional)", theme.FolderOpenIcon(), func() {
		u.pickFile(ed, refresh)
	})

	return widget.NewCard("", "", container.NewVBox(
		mediaLink(c.Post()),
		caption,
		changeBtn,
		previewBox,
		errLabel,
		container.NewHBox(updateBtn, cancelBtn),
	))
}
