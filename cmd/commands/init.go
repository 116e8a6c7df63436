package commands

import (
	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"
	"github.com/tendermint/tendermint/p2p"

	cfg "guardbft/config"
	"guardbft/privval"
	"guardbft/types"
)

// InitFilesCmd initialises a fresh guard node holding a one guard set.
var InitFilesCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a guard node",
	RunE:  initFiles,
}

func initFiles(cmd *cobra.Command, args []string) error {
	return initFilesWithConfig(config)
}

func initFilesWithConfig(config *cfg.Config) error {
	// guard key
	keyFile := config.GuardKeyFile()

	var pv *privval.FilePV
	var err error
	if tmos.FileExists(keyFile) {
		pv, err = privval.LoadFilePV(keyFile)
		if err != nil {
			return err
		}
		logger.Info("Found guard key", "keyFile", keyFile)
	} else {
		pv, err = privval.GenFilePV(keyFile)
		if err != nil {
			return err
		}
		if err := pv.Save(); err != nil {
			return err
		}
		logger.Info("Generated guard key", "keyFile", keyFile)
	}

	nodeKeyFile := config.NodeKeyFile()
	if tmos.FileExists(nodeKeyFile) {
		logger.Info("Found node key", "path", nodeKeyFile)
	} else {
		if _, err := p2p.LoadOrGenNodeKey(nodeKeyFile); err != nil {
			return err
		}
		logger.Info("Generated node key", "path", nodeKeyFile)
	}

	// guard set file
	guardSetFile := config.GuardSetFile()
	if tmos.FileExists(guardSetFile) {
		logger.Info("Found guard set file", "path", guardSetFile)
	} else {
		doc := types.GuardSetDoc{
			Guards: []types.GuardDoc{types.NewGuardDoc(config.Moniker, types.NewGuard(pv.GetPubKey()))},
		}
		if err := doc.SaveAs(guardSetFile); err != nil {
			return err
		}
		logger.Info("Generated guard set file", "path", guardSetFile)
	}

	configFile := config.ConfigFile()
	if !tmos.FileExists(configFile) {
		cfg.WriteConfigFile(configFile, config)
		logger.Info("Generated config file", "path", configFile)
	}

	return nil
}
