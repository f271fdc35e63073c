package main

import (
	"os"

	"github.com/tphakala/audiostream/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
