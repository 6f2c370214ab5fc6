package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rexlx/drizzle/internal/api"
	"github.com/rexlx/drizzle/internal/session"
)

// Config
var (
	host     = flag.String("host", api.DefaultBaseURL, "API base URL")
	numUsers = flag.Int("users", 20, "Concurrent clients")
	rate     = flag.Float64("rate", 2, "Feed requests per second per client")
	duration = flag.Duration("duration", 0, "Stop after this long (0 = until interrupted)")
	upload   = flag.Bool("upload", false, "Each client uploads one post before polling")
)

// Stats Collection
type Stats struct {
	Sent     uint64
	Errors   uint64
	Posts    uint64
	TotalLat int64 // Microseconds
	MaxLat   int64 // Microseconds
}

var globalStats Stats

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)
	if err := checkFlags(*numUsers, *rate); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	go runReporter(ctx)

	log.Printf("Launching %d clients against %s at %.1f req/s each...", *numUsers, *host, *rate)
	var wg sync.WaitGroup
	wg.Add(*numUsers)

	for i := 0; i < *numUsers; i++ {
		go func(id int) {
			defer wg.Done()
			runBot(ctx, id)
		}(i)
		time.Sleep(20 * time.Millisecond)
	}
	wg.Wait()
	log.Printf("done: %d requests, %d errors", atomic.LoadUint64(&totalSent), atomic.LoadUint64(&totalErrors))
}

var totalSent, totalErrors uint64

// checkFlags rejects settings that would leave the bots polling unpaced.
func checkFlags(users int, rate float64) error {
	if users < 1 {
		return fmt.Errorf("-users must be at least 1, got %d", users)
	}
	if rate <= 0 {
		return fmt.Errorf("-rate must be positive, got %g", rate)
	}
	return nil
}

func runReporter(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		sent := atomic.SwapUint64(&globalStats.Sent, 0)
		errs := atomic.SwapUint64(&globalStats.Errors, 0)
		posts := atomic.SwapUint64(&globalStats.Posts, 0)
		totLat := atomic.SwapInt64(&globalStats.TotalLat, 0)
		maxLat := atomic.SwapInt64(&globalStats.MaxLat, 0)

		var avgLat float64
		if sent > 0 {
			avgLat = float64(totLat) / float64(sent) / 1000.0
		}
		maxLatMs := float64(maxLat) / 1000.0

		var perFeed float64
		if sent > 0 {
			perFeed = float64(posts) / float64(sent)
		}
		log.Printf("STATS [1s]: Sent: %d | Errors: %d | Posts/feed: %.1f | Latency: Avg %.2fms / Max %.2fms",
			sent, errs, perFeed, avgLat, maxLatMs)
	}
}

// runBot registers its own account, logs in and polls the feed. Pacing is
// the client's own limiter, so a slow server shows up as latency rather than
// a burst of retries.
func runBot(ctx context.Context, id int) {
	sess := session.New(session.NewMemoryBackend())
	client := api.New(*host, sess, api.WithRateLimit(*rate, 1))

	email := fmt.Sprintf("bench_%d_%d@test.com", id, time.Now().UnixNano())
	if _, err := client.Register(ctx, email, "password"); err != nil {
		log.Printf("Bot %d register failed: %v", id, err)
		return
	}
	if _, err := client.Login(ctx, email, "password"); err != nil {
		log.Printf("Bot %d login failed: %v", id, err)
		return
	}

	if *upload {
		if _, err := client.UploadPost(ctx, benchImage(id), fmt.Sprintf("bench post %d", id)); err != nil {
			log.Printf("Bot %d upload failed: %v", id, err)
		}
	}

	time.Sleep(time.Duration(rand.Intn(1000)) * time.Millisecond)

	for ctx.Err() == nil {
		start := time.Now()
		posts, err := client.Feed(ctx)
		dur := time.Since(start).Microseconds()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			atomic.AddUint64(&globalStats.Errors, 1)
			atomic.AddUint64(&totalErrors, 1)
			if api.IsUnauthorized(err) {
				log.Printf("Bot %d session rejected, stopping", id)
				return
			}
			continue
		}

		atomic.AddUint64(&globalStats.Sent, 1)
		atomic.AddUint64(&totalSent, 1)
		atomic.AddUint64(&globalStats.Posts, uint64(len(posts)))
		atomic.AddInt64(&globalStats.TotalLat, dur)

		for {
			currMax := atomic.LoadInt64(&globalStats.MaxLat)
			if dur <= currMax {
				break
			}
			if atomic.CompareAndSwapInt64(&globalStats.MaxLat, currMax, dur) {
				break
			}
		}
	}
}
