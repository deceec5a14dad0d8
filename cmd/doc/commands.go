package doc

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dDB/cmd/util"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
)

var (
	cmdCmd = &cobra.Command{
		Use:   "cmd [db] [command]",
		Short: "Runs a command on a database (e.g. cmd admin '{\"ping\": 1}')",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command, err := util.ParseDocument(args[1])
			if err != nil {
				return err
			}
			if len(command) == 0 {
				return fmt.Errorf("the command document is empty")
			}
			result, err := rpcClient.RunCommand(args[0], command)
			if result != nil {
				printDocument(result)
			}
			return err
		},
	}
	insertCmd = &cobra.Command{
		Use:   "insert [db.collection] [document...]",
		Short: "Inserts one or more documents",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			docs := make([]bson.D, 0, len(args)-1)
			for _, arg := range args[1:] {
				d, err := util.ParseDocument(arg)
				if err != nil {
					return err
				}
				docs = append(docs, d)
			}
			if err := rpcClient.Insert(args[0], docs...); err != nil {
				return err
			}
			return printLastError(args[0])
		},
	}
	findCmd = &cobra.Command{
		Use:   "find [db.collection] [filter]",
		Short: "Prints the documents matching a filter (all documents if omitted)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var filter bson.D
			if len(args) == 2 {
				var err error
				if filter, err = util.ParseDocument(args[1]); err != nil {
					return err
				}
			}

			skip, _ := cmd.Flags().GetInt("skip")
			limit, _ := cmd.Flags().GetInt("limit")
			projectionText, _ := cmd.Flags().GetString("projection")
			projection, err := util.ParseDocument(projectionText)
			if err != nil {
				return err
			}

			docs, err := rpcClient.Find(args[0], filter, skip, limit, projection)
			if err != nil {
				return err
			}
			for _, d := range docs {
				printDocument(d)
			}
			return nil
		},
	}
	updateCmd = &cobra.Command{
		Use:   "update [db.collection] [selector] [update]",
		Short: "Updates the first document matching the selector (all with --multi)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, err := util.ParseDocument(args[1])
			if err != nil {
				return err
			}
			update, err := util.ParseDocument(args[2])
			if err != nil {
				return err
			}
			upsert, _ := cmd.Flags().GetBool("upsert")
			multi, _ := cmd.Flags().GetBool("multi")

			if err := rpcClient.Update(args[0], selector, update, upsert, multi); err != nil {
				return err
			}
			return printLastError(args[0])
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [db.collection] [selector]",
		Short: "Removes all documents matching the selector (only the first with --single)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector, err := util.ParseDocument(args[1])
			if err != nil {
				return err
			}
			single, _ := cmd.Flags().GetBool("single")

			if err := rpcClient.Delete(args[0], selector, single); err != nil {
				return err
			}
			return printLastError(args[0])
		},
	}
	countCmd = &cobra.Command{
		Use:   "count [db.collection] [filter]",
		Short: "Counts the documents matching a filter",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, collection, ok := strings.Cut(args[0], ".")
			if !ok {
				return fmt.Errorf("expected <db>.<collection>, got %q", args[0])
			}
			command := bson.D{{Key: "count", Value: collection}}
			if len(args) == 2 {
				filter, err := util.ParseDocument(args[1])
				if err != nil {
					return err
				}
				command = append(command, bson.E{Key: "query", Value: filter})
			}
			result, err := rpcClient.RunCommand(database, command)
			if err != nil {
				return err
			}
			printDocument(result)
			return nil
		},
	}
)

func init() {
	findCmd.Flags().Int("skip", 0, util.WrapString("Number of matching documents to skip"))
	findCmd.Flags().Int("limit", 0, util.WrapString("Maximum number of documents to print (0 prints all)"))
	findCmd.Flags().String("projection", "", util.WrapString("Projection document selecting the printed fields"))

	updateCmd.Flags().Bool("upsert", false, util.WrapString("Insert a document if none matches the selector"))
	updateCmd.Flags().Bool("multi", false, util.WrapString("Update all matching documents"))

	removeCmd.Flags().Bool("single", false, util.WrapString("Remove only the first matching document"))
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// printLastError prints the outcome of the last write on the database of
// namespace. A failed write is returned as error.
func printLastError(namespace string) error {
	result, err := rpcClient.GetLastError(namespace)
	if result != nil {
		printDocument(result)
	}
	return err
}

func printDocument(d bson.D) {
	text, err := util.FormatDocument(d)
	if err != nil {
		fmt.Printf("failed to render document: %v\n", err)
		return
	}
	fmt.Println(text)
}
