package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rexlx/drizzle/internal/mockapi"
)

func main() {
	addr := flag.String("addr", ":8000", "listen address")
	key := flag.String("key", envOr("DRIZZLE_MOCK_KEY", "CHANGE_ME"), "token signing key")
	ttl := flag.Duration("ttl", 60*time.Minute, "access token lifetime")
	rps := flag.Float64("rate", 10, "requests per second per client IP (0 = unlimited)")
	burst := flag.Int("burst", 20, "rate limit burst")
	publicURL := flag.String("public-url", "", "base for media URLs (default http://<request host>)")
	logFile := flag.String("log", "mockapi.log", "log file")
	seed := flag.Bool("seed", false, "prompt for a user to create before serving")
	flag.Parse()

	// 1. Setup Logging
	file, err := os.OpenFile(*logFile, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		fmt.Println("Error opening log file:", err)
		os.Exit(1)
	}
	defer file.Close()
	logger := log.New(file, "MOCKAPI: ", log.LstdFlags|log.Lshortfile)

	// 2. Build the in-memory store and server
	db := mockapi.NewMemoryDB()
	if *seed {
		seedUser(db)
	}
	svr := mockapi.NewServer(mockapi.Config{
		Key:       *key,
		TokenTTL:  *ttl,
		RateLimit: *rps,
		Burst:     *burst,
		PublicURL: *publicURL,
	}, logger, db)

	// 3. Prune idle rate limit buckets
	stop := make(chan struct{})
	defer close(stop)
	if svr.Limiter != nil {
		go svr.Limiter.Run(time.Minute, stop)
	}

	// 4. Serve until interrupted
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           svr.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger,
	}
	go func() {
		logger.Printf("mock API listening on %s", *addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to serve:", err)
		}
	}()
	fmt.Printf("mock API listening on %s (log: %s)\n", *addr, *logFile)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Println("shutdown:", err)
	}
	logger.Println("mock API stopped")
}

func seedUser(db mockapi.Database) {
	reader := bufio.NewReader(os.Stdin)
	fmt.Println("--- SEED USER ---")

	fmt.Print("Email: ")
	email, _ := reader.ReadString('\n')
	email = strings.TrimSpace(email)

	fmt.Print("Password: ")
	password, _ := reader.ReadString('\n')
	password = strings.TrimSpace(password)

	if email == "" || password == "" {
		fmt.Println("Error: Email and Password are required.")
		os.Exit(1)
	}

	user := mockapi.User{
		ID:      uuid.NewString(),
		Email:   email,
		Active:  true,
		Created: time.Now().UTC(),
	}
	if err := user.SetPassword(password); err != nil {
		fmt.Printf("Error hashing password: %v\n", err)
		os.Exit(1)
	}
	if err := db.StoreUser(user); err != nil {
		fmt.Printf("Error storing user: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Created user:", email)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
