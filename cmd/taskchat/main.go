// Package main is the taskchat command: a terminal chat panel that talks to
// the task manager's app-guide assistant or to the assistant of one task.
//
// Usage:
//
//	taskchat [chat]                full-screen chat panel
//	taskchat repl                  line-oriented chat
//	taskchat ask [--task ID] MSG   send one message, print the reply
//	taskchat tasks                 list tasks
//	taskchat token set|clear|show  manage stored credentials
//	taskchat config init|show|path
//	taskchat version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

const appName = "taskchat"

var version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
