package main

import (
	"os"
	"path/filepath"

	"github.com/tendermint/tendermint/libs/cli"

	cmd "guardbft/cmd/commands"
	cfg "guardbft/config"
	nm "guardbft/node"
)

func main() {
	rootCmd := cmd.RootCmd

	rootCmd.AddCommand(
		cmd.InitFilesCmd,
		cli.NewCompletionCmd(rootCmd, true),
	)

	// NOTE:
	// Users wishing to:
	//	* Use an external signer for their guard key
	//	* Load the guard set from another source
	// can copy this file and use something other than the
	// DefaultNewNode function
	nodeFunc := nm.DefaultNewNode

	// Create & start node
	rootCmd.AddCommand(
		cmd.GenNodeKeyCmd,
		cmd.ShowNodeIDCmd,
		cmd.GenGuardCmd,
		cmd.ShowGuardCmd,
		cmd.GenGuardSetCmd,
		cmd.TestnetFilesCmd,
		cmd.NewRunNodeCmd(nodeFunc),
	)

	cmd := cli.PrepareBaseCmd(rootCmd, "GUARD", os.ExpandEnv(filepath.Join("$HOME", cfg.DefaultGuardDir)))
	if err := cmd.Execute(); err != nil {
		panic(err)
	}
}
