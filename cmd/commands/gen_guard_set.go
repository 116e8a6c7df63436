package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	tmos "github.com/tendermint/tendermint/libs/os"

	"guardbft/privval"
	"guardbft/types"
)

var (
	epoch       uint64
	includeSelf bool
)

// GenGuardSetCmd 根据公钥列表生成guard set文件，参数顺序即round robin顺序
var GenGuardSetCmd = &cobra.Command{
	Use:     "gen-guard-set [pub_key...]",
	Aliases: []string{"gen_guard_set"},
	Short:   "Generate the guard set file from hex encoded public keys",
	PreRun:  deprecateSnakeCase,
	RunE:    genGuardSet,
}

func init() {
	GenGuardSetCmd.Flags().Uint64Var(&epoch, "epoch", 0, "guard set的epoch")
	GenGuardSetCmd.Flags().BoolVar(&includeSelf, "self", true, "是否把本节点的guard key放在第一位")
}

func genGuardSet(cmd *cobra.Command, args []string) error {
	guardSetFile := config.GuardSetFile()
	if tmos.FileExists(guardSetFile) {
		return fmt.Errorf("guard set file at %s already exists", guardSetFile)
	}

	doc := types.GuardSetDoc{Epoch: epoch}
	if includeSelf {
		pv, err := privval.LoadFilePV(config.GuardKeyFile())
		if err != nil {
			return err
		}
		doc.Guards = append(doc.Guards, types.NewGuardDoc(config.Moniker, types.NewGuard(pv.GetPubKey())))
	}
	for i, pubKey := range args {
		doc.Guards = append(doc.Guards, types.GuardDoc{
			Name:   fmt.Sprintf("guard-%d", len(doc.Guards)),
			PubKey: pubKey,
		})
		logger.Debug("Added guard", "index", i, "pub_key", pubKey)
	}

	// 先解码一遍，保证文件能被节点加载
	guards, err := doc.GuardSet()
	if err != nil {
		return err
	}
	if err := doc.SaveAs(guardSetFile); err != nil {
		return err
	}
	logger.Info("Generated guard set file", "path", guardSetFile, "guards", guards.Size())
	return nil
}
