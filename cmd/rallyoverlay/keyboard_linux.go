//go:build linux

package main

import (
	"context"
	"os"
	"syscall"
	"unsafe"
)

// listenForKeyboard puts the terminal in raw mode and dispatches single
// key presses until ctx is done
func listenForKeyboard(ctx context.Context, keys []shortcut) {
	fd := int(os.Stdin.Fd())
	var oldState syscall.Termios
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), syscall.TCGETS, uintptr(unsafe.Pointer(&oldState))); errno != 0 {
		// not a terminal
		return
	}

	newState := oldState
	// keep OPOST so \n still works
	newState.Lflag &^= syscall.ICANON | syscall.ECHO
	newState.Cc[syscall.VMIN] = 1
	newState.Cc[syscall.VTIME] = 0
	if _, _, errno := syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), syscall.TCSETS, uintptr(unsafe.Pointer(&newState))); errno != 0 {
		return
	}

	restore := func() {
		syscall.Syscall(syscall.SYS_IOCTL, uintptr(fd), syscall.TCSETS, uintptr(unsafe.Pointer(&oldState)))
	}
	defer restore()
	go func() {
		<-ctx.Done()
		restore()
	}()

	readKeys(ctx, os.Stdin, keys)
}
