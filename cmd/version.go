package main

import (
	"os"

	"github.com/urfave/cli/v2"

	nullspacebridge "github.com/happybigmtn/nullspace-bridge"
)

func versionCmd(*cli.Context) error {
	nullspacebridge.PrintVersion(os.Stdout)
	return nil
}
