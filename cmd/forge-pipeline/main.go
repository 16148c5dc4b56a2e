// Command forge-pipeline runs the release pipeline of an application from CI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bcit-ltc/forge-pipeline/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr, cli.Deps{})
	stop()
	os.Exit(code)
}
