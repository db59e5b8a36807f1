// line-cli is a thin example wrapper over internal/client: it logs in (or
// resumes a saved session), watches the chat mids given on the command
// line, and prints every dispatched event to stdout until interrupted.
//
// Grounded on cmd/api/main.go's flag-and-log startup shape, scaled down to
// a single-purpose CLI rather than an HTTP service.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jkfujinami/linepy/internal/client"
	"github.com/jkfujinami/linepy/internal/config"
)

func main() {
	chatList := flag.String("chats", "", "comma-separated chat mids to watch")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, continuing with process environment")
	}

	var watched []string
	for _, mid := range strings.Split(*chatList, ",") {
		if mid = strings.TrimSpace(mid); mid != "" {
			watched = append(watched, mid)
		}
	}

	cfg := config.Get()

	c, err := client.New(cfg, slog.Default())
	if err != nil {
		log.Fatalf("line-cli: build client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Resume(ctx); err != nil {
		slog.Info("no persisted session found, starting QR login", "error", err)
		onURL := func(url string) { fmt.Printf("scan this QR login URL: %s\n", url) }
		onPIN := func(pin string) { fmt.Printf("or enter this PIN in the app: %s\n", pin) }
		if err := c.Login(ctx, "", onURL, onPIN); err != nil {
			log.Fatalf("line-cli: login: %v", err)
		}
	}

	ch, unsubscribe, ok := c.Subscribe(watched...)
	if ok {
		go func() {
			for msg := range ch {
				fmt.Printf("[%s] chat=%s payload=%v\n", msg.Time.Format("15:04:05"), msg.ChatMid, msg.Payload)
			}
		}()
		defer unsubscribe()
	} else {
		slog.Warn("event bus backend does not support local subscription, events will not be printed")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		slog.Info("line-cli stopping")
		c.Stop()
		cancel()
	}()

	c.Start(ctx, watched)
}
