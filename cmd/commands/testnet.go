package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tendermint/tendermint/p2p"

	cfg "guardbft/config"
	"guardbft/privval"
	"guardbft/types"
)

var (
	nGuards       int
	outputDir     string
	nodeDirPrefix string
	hostname      string
	startingPort  int
)

// TestnetFilesCmd 在本机生成n个guard节点的目录，互为persistent peers
var TestnetFilesCmd = &cobra.Command{
	Use:   "testnet",
	Short: "Initialize files for a local guard testnet",
	RunE:  testnetFiles,
}

func init() {
	TestnetFilesCmd.Flags().IntVar(&nGuards, "n", 4, "guard节点数量")
	TestnetFilesCmd.Flags().StringVar(&outputDir, "o", "./mytestnet", "输出目录")
	TestnetFilesCmd.Flags().StringVar(&nodeDirPrefix, "node-dir-prefix", "node", "节点目录前缀，例如node0 node1")
	TestnetFilesCmd.Flags().StringVar(&hostname, "hostname", "127.0.0.1", "节点监听的host")
	TestnetFilesCmd.Flags().IntVar(&startingPort, "starting-port", 26656, "第一个节点的p2p端口，rpc端口为p2p端口+1")
}

func testnetFiles(cmd *cobra.Command, args []string) error {
	if nGuards < 1 {
		return fmt.Errorf("n must be positive, got %d", nGuards)
	}

	configs := make([]*cfg.Config, nGuards)
	doc := types.GuardSetDoc{}
	peers := make([]string, nGuards)

	for i := 0; i < nGuards; i++ {
		nodeDir := filepath.Join(outputDir, fmt.Sprintf("%s%d", nodeDirPrefix, i))
		c := cfg.DefaultConfig().SetRoot(nodeDir)
		c.Moniker = fmt.Sprintf("%s%d", nodeDirPrefix, i)
		c.P2P.ListenAddress = fmt.Sprintf("tcp://%s:%d", hostname, startingPort+2*i)
		c.RPC.ListenAddress = fmt.Sprintf("tcp://%s:%d", hostname, startingPort+2*i+1)
		c.P2P.AllowDuplicateIP = true
		c.P2P.AddrBookStrict = false

		if err := os.MkdirAll(filepath.Dir(c.GuardKeyFile()), 0700); err != nil {
			_ = os.RemoveAll(outputDir)
			return err
		}
		if err := os.MkdirAll(c.DBDir(), 0700); err != nil {
			_ = os.RemoveAll(outputDir)
			return err
		}

		pv, err := privval.LoadOrGenFilePV(c.GuardKeyFile())
		if err != nil {
			return err
		}
		nodeKey, err := p2p.LoadOrGenNodeKey(c.NodeKeyFile())
		if err != nil {
			return err
		}

		doc.Guards = append(doc.Guards, types.NewGuardDoc(c.Moniker, types.NewGuard(pv.GetPubKey())))
		peers[i] = p2p.IDAddressString(nodeKey.ID(), fmt.Sprintf("%s:%d", hostname, startingPort+2*i))
		configs[i] = c
	}

	for i, c := range configs {
		others := make([]string, 0, len(peers)-1)
		for j, peer := range peers {
			if j != i {
				others = append(others, peer)
			}
		}
		c.P2P.PersistentPeers = strings.Join(others, ",")

		if err := doc.SaveAs(c.GuardSetFile()); err != nil {
			_ = os.RemoveAll(outputDir)
			return err
		}
		cfg.WriteConfigFile(c.ConfigFile(), c)
	}

	fmt.Printf("Successfully initialized %v guard directories\n", nGuards)
	return nil
}
