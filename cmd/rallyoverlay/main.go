package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abrezinsky/rallyoverlay/internal/app"
	"github.com/abrezinsky/rallyoverlay/internal/browser"
	"github.com/abrezinsky/rallyoverlay/internal/config"
	"github.com/abrezinsky/rallyoverlay/internal/logger"
	"github.com/abrezinsky/rallyoverlay/web"
)

// ANSI escape codes
const (
	reset  = "\033[0m"
	yellow = "\033[33m"
	red    = "\033[31m"
	green  = "\033[32m"
	cyan   = "\033[36m"
	bold   = "\033[1m"
)

func printBanner() {
	fmt.Printf("\n  %s%sRALLY OVERLAY%s  %sstage times, standings and audio for the stream%s\n", bold, yellow, reset, cyan, reset)
}

func main() {
	args := os.Args[1:]
	file, envFile := config.FilePaths(args)
	cfg, err := config.Load(config.Options{File: file, EnvFile: envFile, Args: args})
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		log.Fatal("Invalid configuration: ", err)
	}

	printBanner()

	appLog := logger.NewWithLevel(logger.ParseLevel(cfg.LogLevel))

	a, err := app.New(app.Options{
		Config:    cfg,
		Log:       appLog,
		Templates: web.Templates(),
		Static:    web.Static(),
	})
	if err != nil {
		log.Fatal("Failed to initialize application: ", err)
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.Run(ctx)
	}()

	// Wait a moment for the base URL to be resolved
	time.Sleep(100 * time.Millisecond)

	if !cfg.NoBrowser {
		if err := browser.Open(a.SetupURL()); err != nil {
			appLog.Warn("Could not open browser", "url", a.SetupURL(), "error", err)
		}
	}

	if !cfg.NoKeys {
		keys := shortcuts(a, appLog, stop)
		printKeyboardHelp(keys)
		go listenForKeyboard(ctx, keys)
	} else {
		fmt.Printf("\n%sKeyboard shortcuts disabled%s\n\n", yellow, reset)
	}

	if err := <-serverErr; err != nil {
		appLog.Error("Server stopped", "error", err)
		a.Close()
		os.Exit(1)
	}
	appLog.Info("Server stopped")
}
