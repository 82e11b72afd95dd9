package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"vending-backend/internal/kiosk"
)

func main() {
	defaultServer := os.Getenv("VENDING_SERVER")
	if defaultServer == "" {
		defaultServer = "http://localhost:8080"
	}
	server := flag.String("server", defaultServer, "vending backend address")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	term := kiosk.NewTerminal(kiosk.NewClient(*server), os.Stdin, os.Stdout)
	if err := term.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
