package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	questdcmd "github.com/suit-up-repos/questd/internal/cmd/questd"
)

func main() {
	cfg, err := questdcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[QUESTD] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := questdcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
