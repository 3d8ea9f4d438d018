// Command bdb runs the Bloom-filter database server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/apkaspell/bdb/internal/applog"
	"github.com/apkaspell/bdb/internal/config"
	"github.com/apkaspell/bdb/internal/ctl"
	"github.com/apkaspell/bdb/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	verbose := flag.Bool("verbose", false, "enable per-request debug logging")
	flag.Parse()

	confPath := config.DefaultFile
	switch flag.NArg() {
	case 0:
	case 1:
		confPath = flag.Arg(0)
	default:
		return fmt.Errorf("bdb: too many arguments")
	}

	log := applog.New(*verbose)

	cfg, err := config.Load(confPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	c, err := ctl.NewBlank(cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to initialize controller")
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("error closing controller")
		}
	}()

	if err := c.LoadFromStorage(); err != nil {
		log.WithError(err).Fatal("failed to load storage")
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutdown signal received")
		cancel()
	}()

	srv := server.New(c, log)
	log.Info("server running, press Ctrl+C to shut down")
	if err := srv.Serve(ctx); err != nil {
		log.WithError(err).Fatal("server error")
	}
	return nil
}
