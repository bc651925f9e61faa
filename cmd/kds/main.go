// Command kds operates the kitchen display order store.
package main

import (
	"context"
	"os"

	"github.com/roach88/kds/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
