// oscgate bridges an OSC controller to its runtime over TCP, UDP or
// WebSockets.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"oscgate/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "oscgate: %v\n", err)
		os.Exit(1)
	}
}
