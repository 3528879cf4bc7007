package main

import (
	"os"

	"github.com/spec-kit/job-tracker/cmd/jobctl/cmd"
)

func main() {
	if err := cmd.RootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
