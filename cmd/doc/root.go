package doc

import (
	"github.com/ValentinKolb/dDB/cmd/util"
	"github.com/ValentinKolb/dDB/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.RPCClient

	// DocumentCommands represents the document command group
	DocumentCommands = &cobra.Command{
		Use:                "doc",
		Short:              "Perform document operations against a dDB server",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the document commands
	util.SetupRPCClientFlags(DocumentCommands)

	// Add subcommands
	DocumentCommands.AddCommand(cmdCmd)
	DocumentCommands.AddCommand(insertCmd)
	DocumentCommands.AddCommand(findCmd)
	DocumentCommands.AddCommand(updateCmd)
	DocumentCommands.AddCommand(removeCmd)
	DocumentCommands.AddCommand(countCmd)
	DocumentCommands.AddCommand(perfTestCmd)
	DocumentCommands.AddCommand(shellCmd)
}

// setupClient connects the RPC client
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	var err error
	rpcClient, err = util.NewClient()
	return err
}

func closeClient(_ *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close()
}
