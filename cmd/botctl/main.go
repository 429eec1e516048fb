package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/blackmichael/photoposts/internal/telegram"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		token       string
		apiURL      string
		dropPending bool
	)

	flag.StringVar(&token, "token", envOrDefault("TELEGRAM_BOT_TOKEN", ""), "Bot API token")
	flag.StringVar(&apiURL, "api", envOrDefault("TELEGRAM_API_URL", "https://api.telegram.org"), "Bot API base URL")
	flag.BoolVar(&dropPending, "drop-pending", false, "Discard updates queued while the webhook was active (drop-webhook only)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] whoami|drop-webhook\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if token == "" {
		return fmt.Errorf("--token is required (or set TELEGRAM_BOT_TOKEN)")
	}
	if flag.NArg() != 1 {
		flag.Usage()
		return fmt.Errorf("exactly one command is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client := telegram.NewClient(apiURL, token)

	switch cmd := flag.Arg(0); cmd {
	case "whoami":
		me, err := client.GetMe(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Authenticated as @%s (id %d)\n", me.Username, me.ID)
		return nil

	case "drop-webhook":
		if err := client.DeleteWebhook(ctx, dropPending); err != nil {
			return err
		}
		fmt.Println("Webhook removed; updates can now be polled")
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func envOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
