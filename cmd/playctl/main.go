package main

import (
	"fmt"
	"os"

	"github.com/atmx/playmarket/internal/cli"
)

func main() {
	if err := cli.RootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
