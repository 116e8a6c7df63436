package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	"guardbft/privval"
	"guardbft/types"
)

// GenGuardCmd 生成guard的secp256k1公私钥对
var GenGuardCmd = &cobra.Command{
	Use:     "gen-guard",
	Aliases: []string{"gen_guard"},
	Args:    cobra.NoArgs,
	Short:   "Generate new guard keypair",
	PreRun:  deprecateSnakeCase,
	RunE:    genGuard,
}

// ShowGuardCmd 输出本节点在guard set文件中的条目
var ShowGuardCmd = &cobra.Command{
	Use:     "show-guard",
	Aliases: []string{"show_guard"},
	Short:   "Show this node's guard entry",
	RunE:    showGuard,
	PreRun:  deprecateSnakeCase,
}

func genGuard(cmd *cobra.Command, args []string) error {
	keyFile := config.GuardKeyFile()
	if tmos.FileExists(keyFile) {
		logger.Info("Found guard key", "keyFile", keyFile)
		return nil
	}

	pv, err := privval.GenFilePV(keyFile)
	if err != nil {
		return err
	}
	if err := pv.Save(); err != nil {
		return err
	}
	return printGuard(pv)
}

func showGuard(cmd *cobra.Command, args []string) error {
	keyFile := config.GuardKeyFile()
	if !tmos.FileExists(keyFile) {
		return fmt.Errorf("guard key file %s does not exist", keyFile)
	}

	pv, err := privval.LoadFilePV(keyFile)
	if err != nil {
		return err
	}
	return printGuard(pv)
}

func printGuard(pv *privval.FilePV) error {
	bz, err := json.Marshal(types.NewGuardDoc(config.Moniker, types.NewGuard(pv.GetPubKey())))
	if err != nil {
		return err
	}
	fmt.Println(string(bz))
	return nil
}
