package main

import (
	"os"

	"votingledger/cmd/votingctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
