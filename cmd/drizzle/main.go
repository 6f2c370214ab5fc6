package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"github.com/rexlx/drizzle/internal/api"
	"github.com/rexlx/drizzle/internal/config"
	"github.com/rexlx/drizzle/internal/route"
	"github.com/rexlx/drizzle/internal/session"
)

const appID = "com.rexlx.drizzle"

func main() {
	var flags config.Flags
	flags.Register(flag.CommandLine)
	flag.Parse()

	cfg, err := config.Load(flags, os.Getenv)
	if err != nil {
		fmt.Println("Error loading config:", err)
		os.Exit(1)
	}

	// 1. Setup Logging
	file, err := os.OpenFile(cfg.LogFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		fmt.Println("Error opening log file:", err)
		os.Exit(1)
	}
	defer file.Close()
	logger := log.New(file, "DRIZZLE: ", log.LstdFlags|log.Lshortfile)

	// 2. The token lives in the app preferences unless a session file was
	// asked for explicitly
	mainApp := app.NewWithID(appID)
	var backend session.Backend = mainApp.Preferences()
	if flags.SessionFile != "" || os.Getenv(config.EnvSessionFile) != "" {
		backend = session.NewFileBackend(cfg.SessionFile, logger)
	}
	sess := session.New(backend)

	// 3. API client
	opts := append(cfg.ClientOptions(), api.WithLogger(logger))
	client := api.New(cfg.APIURL, sess, opts...)
	logger.Printf("using API at %s", client.BaseURL)

	window := mainApp.NewWindow("drizzle")
	window.Resize(fyne.NewSize(720, 900))

	ui := NewUI(mainApp, window, client, sess, logger)

	// 4. Start wherever the session allows
	ui.router = route.NewRouter(sess, ui.show, logger)
	ui.router.Navigate(route.Feed)

	window.ShowAndRun()
	ui.closeFeed()
}
