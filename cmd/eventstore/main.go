// Command eventstore operates an event store from the command line and serves its HTTP API.
package main

import (
	"context"
	"os"

	"github.com/AntonStoeckl/scoped-eventstore-go/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
