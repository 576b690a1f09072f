package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/platinummonkey/tenantguard/pkg/cli"
)

func main() {
	logger := cli.NewLogger(os.Getenv("TENANTGUARD_LOG_LEVEL"))
	root := cli.NewRootCommand(cli.Env{Out: os.Stdout, Logger: logger})

	if err := root.Execute(os.Args[1:]); err != nil {
		if errors.Is(err, cli.ErrDenied) {
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
