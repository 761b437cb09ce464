package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/abrezinsky/rallyoverlay/internal/browser"
	"github.com/abrezinsky/rallyoverlay/internal/logger"
)

// pages is what the shortcuts need from the running app
type pages interface {
	SetupURL() string
	OverlayURL() string
}

type shortcut struct {
	key  byte
	help string
	run  func()
}

func shortcuts(p pages, appLog *logger.SlogLogger, quit func()) []shortcut {
	open := func(name, url string) {
		fmt.Printf("%sOpening %s page in browser...%s\n", cyan, name, reset)
		if err := browser.Open(url); err != nil {
			fmt.Printf("%sError opening browser: %v%s\n", red, err, reset)
		}
	}
	shutdown := func() {
		fmt.Printf("%sShutting down server...%s\n", yellow, reset)
		quit()
	}

	var keys []shortcut
	keys = []shortcut{
		{'s', "Open setup page in browser", func() { open("setup", p.SetupURL()) }},
		{'o', "Open overlay page in browser", func() { open("overlay", p.OverlayURL()) }},
		{'u', "Print setup and overlay URLs", func() {
			fmt.Printf("  Setup:   %s\n  Overlay: %s\n", p.SetupURL(), p.OverlayURL())
		}},
		{'h', "Toggle HTTP request logging", func() { toggleHTTPLogging(appLog) }},
		{'l', "Cycle log level (debug, info, warn, error)", func() { cycleLogLevel(appLog) }},
		{'q', "Quit server", shutdown},
		{'?', "Show this help", func() { printKeyboardHelp(keys) }},
		{0x03, "", shutdown}, // Ctrl+C in raw mode
	}
	return keys
}

// handleKey runs the shortcut bound to b, ignoring case. It reports
// whether one matched.
func handleKey(b byte, keys []shortcut) bool {
	k := strings.ToLower(string(b))
	for _, s := range keys {
		if string(s.key) == k {
			s.run()
			return true
		}
	}
	return false
}

// readKeys dispatches every byte from r until ctx is done or r fails
func readKeys(ctx context.Context, r io.Reader, keys []shortcut) {
	br := bufio.NewReader(r)
	for ctx.Err() == nil {
		b, err := br.ReadByte()
		if err != nil {
			return
		}
		handleKey(b, keys)
	}
}

func toggleHTTPLogging(appLog *logger.SlogLogger) {
	if appLog.IsHTTPLoggingEnabled() {
		appLog.DisableHTTPLogging()
		fmt.Printf("%sHTTP logging disabled%s\n", yellow, reset)
	} else {
		appLog.EnableHTTPLogging()
		fmt.Printf("%sHTTP logging enabled%s\n", green, reset)
	}
}

// cycleLogLevel cycles through debug -> info -> warn -> error
func cycleLogLevel(appLog *logger.SlogLogger) {
	next := map[string]string{
		"DEBUG": "info",
		"INFO":  "warn",
		"WARN":  "error",
		"ERROR": "debug",
	}[appLog.GetLevel().String()]
	if next == "" {
		next = "info"
	}
	appLog.SetLevel(logger.ParseLevel(next))
	fmt.Printf("%sLog level: %s%s%s\n", green, yellow, next, reset)
}

// printKeyboardHelp displays all available keyboard shortcuts
func printKeyboardHelp(keys []shortcut) {
	fmt.Printf("\n%s%s  Keyboard Shortcuts:%s\n", bold, green, reset)
	for _, s := range keys {
		if s.help == "" {
			continue
		}
		fmt.Printf("    %s%c%s      - %s\n", cyan, s.key, reset, s.help)
	}
	fmt.Println()
}
