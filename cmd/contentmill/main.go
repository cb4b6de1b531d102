package main

import (
	"os"

	"github.com/contentmill/contentmill/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
