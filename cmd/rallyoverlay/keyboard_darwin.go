//go:build darwin

package main

import (
	"context"
	"os"

	"golang.org/x/sys/unix"
)

// listenForKeyboard puts the terminal in raw mode and dispatches single
// key presses until ctx is done
func listenForKeyboard(ctx context.Context, keys []shortcut) {
	fd := int(os.Stdin.Fd())
	oldState, err := unix.IoctlGetTermios(fd, unix.TIOCGETA)
	if err != nil {
		// not a terminal
		return
	}

	newState := *oldState
	newState.Lflag &^= unix.ICANON | unix.ECHO
	newState.Cc[unix.VMIN] = 1
	newState.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TIOCSETA, &newState); err != nil {
		return
	}

	restore := func() { unix.IoctlSetTermios(fd, unix.TIOCSETA, oldState) }
	defer restore()
	go func() {
		<-ctx.Done()
		restore()
	}()

	readKeys(ctx, os.Stdin, keys)
}
