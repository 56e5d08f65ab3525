package main

import (
	"os"

	"github.com/wesleyorama2/hiccup/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
