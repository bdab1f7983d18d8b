package main

import (
	"os"

	"github.com/prologbook/prologbook/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
