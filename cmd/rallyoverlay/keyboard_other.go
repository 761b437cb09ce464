//go:build !linux && !darwin

package main

import (
	"context"
	"os"
)

// listenForKeyboard reads stdin as is. Without raw mode each key needs Enter.
func listenForKeyboard(ctx context.Context, keys []shortcut) {
	readKeys(ctx, os.Stdin, keys)
}
