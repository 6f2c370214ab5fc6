package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/rexlx/drizzle/internal"
	"github.com/rexlx/drizzle/internal/api"
	"github.com/rexlx/drizzle/internal/config"
	"github.com/rexlx/drizzle/internal/editor"
	"github.com/rexlx/drizzle/internal/feed"
	"github.com/rexlx/drizzle/internal/session"
)

const (
	msgExpired     = "session expired, please log in"
	msgNotLoggedIn = "not logged in"
	dateLayout     = "2006-01-02 15:04"
)

var errUsage = errors.New("usage")

const usage = `usage: drizzle-cli [global flags] <command> [flags]

commands:
  register  -email <email> [-password <pw>]   create an account and log in
  login     -email <email> [-password <pw>]   log in
  logout                                      forget the stored token
  whoami                                      show the stored session
  feed      [-json]                           list posts, newest first
  upload    -file <path> [-caption <text>]    create a post
  edit      -id <post> [-caption <text>] [-file <path>]
  delete    -id <post> [-yes]

global flags:
`

type cli struct {
	in      *bufio.Reader
	out     io.Writer
	errOut  io.Writer
	logger  *log.Logger
	session *session.Store
	client  *api.Client
	// expired is set once the API has rejected the session.
	expired bool
}

func run(ctx context.Context, args []string, getenv func(string) string, stdin io.Reader, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("drizzle-cli", flag.ContinueOnError)
	global.SetOutput(stderr)
	var flags config.Flags
	flags.Register(global)
	verbose := global.Bool("v", false, "log requests to stderr")
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	cfg, err := config.Load(flags, getenv)
	if err != nil {
		fmt.Fprintln(stderr, "Error loading config:", err)
		return 1
	}

	logger := log.New(io.Discard, "", 0)
	if *verbose {
		logger = log.New(stderr, "CLI: ", log.LstdFlags)
	}

	sess := session.New(session.NewFileBackend(cfg.SessionFile, logger))
	opts := append(cfg.ClientOptions(), api.WithLogger(logger))
	c := &cli{
		in:      bufio.NewReader(stdin),
		out:     stdout,
		errOut:  stderr,
		logger:  logger,
		session: sess,
		client:  api.New(cfg.APIURL, sess, opts...),
	}

	cmd, rest := global.Arg(0), global.Args()[1:]
	err = c.dispatch(ctx, cmd, rest)
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	case c.expired || api.IsUnauthorized(err):
		c.expire()
		return 1
	default:
		fmt.Fprintln(stderr, err)
		return 1
	}
}

func (c *cli) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "register":
		return c.register(ctx, args)
	case "login":
		return c.login(ctx, args)
	case "logout":
		c.session.Logout()
		fmt.Fprintln(c.out, "logged out")
		return nil
	case "whoami":
		return c.whoami()
	case "feed":
		return c.feed(ctx, args)
	case "upload":
		return c.upload(ctx, args)
	case "edit":
		return c.edit(ctx, args)
	case "delete":
		return c.delete(ctx, args)
	}
	fmt.Fprintf(c.errOut, "unknown command %q\n\n%s", cmd, usage)
	return errUsage
}

// expire clears the session once and tells the user to log in again.
func (c *cli) expire() {
	if !c.expired {
		c.expired = true
		c.session.Logout()
	}
	fmt.Fprintln(c.errOut, msgExpired)
}

func (c *cli) hooks() editor.Hooks {
	return editor.Hooks{
		Unauthorized: func() {
			c.expired = true
			c.session.Logout()
		},
		Logger: c.logger,
	}
}

func (c *cli) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

func (c *cli) prompt(label string) string {
	fmt.Fprint(c.out, label)
	line, _ := c.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func (c *cli) credentials(name string, args []string) (string, string, error) {
	fs := c.newFlagSet(name)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "account password (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return "", "", errUsage
	}
	if *email == "" {
		*email = c.prompt("Email: ")
	}
	if *password == "" {
		*password = c.prompt("Password: ")
	}
	if *email == "" || *password == "" {
		fmt.Fprintln(c.errOut, "Error: Email and Password are required.")
		return "", "", errUsage
	}
	return *email, *password, nil
}

func (c *cli) register(ctx context.Context, args []string) error {
	email, password, err := c.credentials("register", args)
	if err != nil {
		return err
	}
	user, err := c.client.Register(ctx, email, password)
	if err != nil {
		return fmt.Errorf("register: %s", api.Message(err, "Registration failed"))
	}
	if _, err := c.client.Login(ctx, email, password); err != nil {
		return fmt.Errorf("login: %s", api.Message(err, "Login failed"))
	}
	fmt.Fprintf(c.out, "registered %s (%s) and logged in\n", user.Email, user.ID)
	return nil
}

func (c *cli) login(ctx context.Context, args []string) error {
	email, password, err := c.credentials("login", args)
	if err != nil {
		return err
	}
	if _, err := c.client.Login(ctx, email, password); err != nil {
		return fmt.Errorf("login: %s", api.Message(err, "Login failed"))
	}
	fmt.Fprintf(c.out, "logged in as %s\n", email)
	return nil
}

func (c *cli) whoami() error {
	if !c.session.IsAuthenticated() {
		fmt.Fprintln(c.out, msgNotLoggedIn)
		return nil
	}
	claims, err := c.session.Claims()
	if err != nil {
		fmt.Fprintln(c.out, "logged in (token is not a readable JWT)")
		return nil
	}
	fmt.Fprintf(c.out, "user: %s\n", claims.Subject)
	if !claims.ExpiresAt.IsZero() {
		fmt.Fprintf(c.out, "expires: %s\n", claims.ExpiresAt.Local().Format(dateLayout))
	}
	return nil
}

// loadFeed runs the feed controller once. A missing or rejected session
// comes back as an unauthorized error so run prints one message.
func (c *cli) loadFeed(ctx context.Context) ([]internal.Post, error) {
	redirected := false
	ctrl := feed.New(c.client, c.session, func() { redirected = true }, c.logger)
	defer ctrl.Close()

	err := ctrl.Load(ctx)
	snap := ctrl.Snapshot()
	switch {
	case redirected && err == nil:
		fmt.Fprintln(c.errOut, msgNotLoggedIn)
		return nil, errUsage
	case redirected:
		c.expired = true
		return nil, err
	case snap.State == feed.Failed:
		c.logger.Printf("feed: %v", err)
		return nil, errors.New(snap.Err)
	}
	return snap.Posts, nil
}

func (c *cli) feed(ctx context.Context, args []string) error {
	fs := c.newFlagSet("feed")
	asJSON := fs.Bool("json", false, "print the raw posts as JSON")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	posts, err := c.loadFeed(ctx)
	if err != nil {
		return err
	}
	if *asJSON {
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(internal.FeedResponse{Posts: posts})
	}
	if len(posts) == 0 {
		fmt.Fprintln(c.out, feed.MsgEmpty)
		return nil
	}
	for _, p := range posts {
		fmt.Fprintf(c.out, "%s  %s  [%s] %s\n", p.ID, p.CreatedAt.Local().Format(dateLayout), p.FileType, p.FileName)
		if p.Caption != "" {
			fmt.Fprintf(c.out, "    %s\n", p.Caption)
		}
		fmt.Fprintf(c.out, "    %s\n", p.URL)
	}
	return nil
}

func (c *cli) upload(ctx context.Context, args []string) error {
	fs := c.newFlagSet("upload")
	path := fs.String("file", "", "image or video to post")
	caption := fs.String("caption", "", "caption")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if !c.session.IsAuthenticated() {
		fmt.Fprintln(c.errOut, msgNotLoggedIn)
		return errUsage
	}

	ed := editor.NewCreate(c.client, editor.SniffPreviewer{}, c.hooks())
	defer ed.Close()
	ed.SetCaption(*caption)
	if *path != "" {
		if err := c.selectFile(ctx, ed, *path); err != nil {
			return err
		}
	}
	if err := ed.Submit(ctx); err != nil {
		if c.expired {
			return err
		}
		return errors.New(ed.Err())
	}
	fmt.Fprintln(c.out, editor.MsgCreated)
	return nil
}

// selectFile hands path to ed. Only a file that is missing or is not an
// image or video stops the command; the preview itself is never shown here.
func (c *cli) selectFile(ctx context.Context, ed *editor.Editor, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	err := ed.SelectFile(ctx, internal.FileFromPath(path))
	if errors.Is(err, editor.ErrNotMedia) {
		return err
	}
	if err != nil {
		c.logger.Printf("preview %s: %v", path, err)
	}
	return nil
}

// findPost looks id up in the feed; the API has no single-post endpoint.
func (c *cli) findPost(ctx context.Context, id string) (internal.Post, error) {
	posts, err := c.loadFeed(ctx)
	if err != nil {
		return internal.Post{}, err
	}
	for _, p := range posts {
		if p.ID == id {
			return p, nil
		}
	}
	return internal.Post{}, errors.New("Post not found")
}

func (c *cli) edit(ctx context.Context, args []string) error {
	fs := c.newFlagSet("edit")
	id := fs.String("id", "", "post id")
	caption := fs.String("caption", "", "new caption")
	path := fs.String("file", "", "replacement image or video")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *id == "" {
		fmt.Fprintln(c.errOut, "Error: -id is required.")
		return errUsage
	}
	captionSet := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "caption" {
			captionSet = true
		}
	})

	post, err := c.findPost(ctx, *id)
	if err != nil {
		return err
	}

	card := editor.NewCard(post, c.client, editor.SniffPreviewer{}, nil, c.hooks())
	ed := card.BeginEdit()
	defer card.Cancel()
	if captionSet {
		ed.SetCaption(*caption)
	}
	if *path != "" {
		if err := c.selectFile(ctx, ed, *path); err != nil {
			return err
		}
	}
	if err := card.Save(ctx); err != nil {
		if c.expired {
			return err
		}
		return errors.New(ed.Err())
	}
	fmt.Fprintln(c.out, editor.MsgUpdated)
	return nil
}

func (c *cli) delete(ctx context.Context, args []string) error {
	fs := c.newFlagSet("delete")
	id := fs.String("id", "", "post id")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}
	if *id == "" {
		fmt.Fprintln(c.errOut, "Error: -id is required.")
		return errUsage
	}
	if !c.session.IsAuthenticated() {
		fmt.Fprintln(c.errOut, msgNotLoggedIn)
		return errUsage
	}

	confirm := editor.ConfirmFunc(func(_ context.Context, msg string) bool {
		if *yes {
			return true
		}
		answer := c.prompt(msg + " [y/N] ")
		return strings.EqualFold(answer, "y") || strings.EqualFold(answer, "yes")
	})
	card := editor.NewCard(internal.Post{ID: *id}, c.client, nil, confirm, c.hooks())

	deleted, err := card.Delete(ctx)
	if err != nil {
		if c.expired {
			return err
		}
		return errors.New(card.Err())
	}
	if !deleted {
		fmt.Fprintln(c.out, "cancelled")
		return nil
	}
	fmt.Fprintln(c.out, editor.MsgDeleted)
	return nil
}
