package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/radosgo/rados"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:]))
}

// run executes one command line and returns the process exit code.
func run(ctx context.Context, args []string) int {
	rootCmd, cleanup := newRootCmd()
	rootCmd.SetArgs(args)

	err := rootCmd.ExecuteContext(ctx)
	if cerr := cleanup(); err == nil {
		err = cerr
	}
	if err == nil {
		return 0
	}
	fmt.Fprintf(os.Stderr, "radosctl: %v\n", err)
	if rados.IsNotFound(err) {
		return 2
	}
	return 1
}
