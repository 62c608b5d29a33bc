// Package main is the entry point for the timely CLI.
package main

import (
	"os"

	"github.com/joho/godotenv"

	"github.com/Bhavikpatel576/timely/internal/cli"
)

func main() {
	_ = godotenv.Load()
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
