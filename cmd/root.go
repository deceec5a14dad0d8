package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/dDB/cmd/doc"
	"github.com/ValentinKolb/dDB/cmd/serve"
	"github.com/ValentinKolb/dDB/rpc/server"
	"github.com/spf13/cobra"
)

const (
	Version = "0.1.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "ddb",
		Short: "in-memory document database",
		Long: fmt.Sprintf(`dDB (v%s)

An in-memory document database written in Go that speaks the legacy
MongoDB wire protocol (OP_QUERY, OP_INSERT, OP_UPDATE, OP_DELETE).
Nothing is persisted: all data is lost when the server stops.`, Version),
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dDB",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dDB v%s (reports server version %s)\n", Version, server.ServerVersion)
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(doc.DocumentCommands)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
