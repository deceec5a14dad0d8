package doc

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ValentinKolb/dDB/cmd/util"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/bson"
)

var shellCmd = &cobra.Command{
	Use:   "shell",
	Short: "Starts an interactive shell running commands (e.g. admin {\"ping\": 1})",
	Long: `Starts an interactive shell. Every line is a database name followed by a command document in Extended JSON, e.g.

  shop {"count": "orders", "query": {"paid": true}}

The command document may span several lines, it ends once its braces are balanced. "exit" or Ctrl+D leave the shell.`,
	Args: cobra.NoArgs,
	RunE: runShell,
}

const shellHistoryFile = ".ddb_history"

func runShell(_ *cobra.Command, _ []string) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	historyPath := ""
	if home, err := os.UserHomeDir(); err == nil {
		historyPath = filepath.Join(home, shellHistoryFile)
		if f, err := os.Open(historyPath); err == nil {
			_, _ = line.ReadHistory(f)
			_ = f.Close()
		}
	}

	fmt.Printf("connected to %s, type \"exit\" to leave\n", util.GetClientConfig().Transport.Endpoint)

	for {
		input, err := readStatement(line)
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}
		line.AppendHistory(input)

		database, command, err := parseStatement(input)
		if err != nil {
			fmt.Println(err)
			continue
		}
		result, err := rpcClient.RunCommand(database, command)
		if result != nil {
			printDocument(result)
		}
		if err != nil {
			fmt.Println(err)
		}
	}

	if historyPath != "" {
		if f, err := os.Create(historyPath); err == nil {
			_, _ = line.WriteHistory(f)
			_ = f.Close()
		}
	}
	return nil
}

// readStatement reads lines until the braces of the statement are balanced
func readStatement(line *liner.State) (string, error) {
	text, err := line.Prompt("ddb> ")
	if err != nil {
		return "", err
	}
	for braceDepth(text) > 0 {
		next, err := line.Prompt("...  ")
		if err != nil {
			return "", err
		}
		text += "\n" + next
	}
	return text, nil
}

// braceDepth returns the number of unclosed braces outside of string literals
func braceDepth(text string) int {
	depth := 0
	inString, escaped := false, false
	for _, r := range text {
		switch {
		case escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case r == '"':
			inString = !inString
		case inString:
		case r == '{':
			depth++
		case r == '}':
			depth--
		}
	}
	return depth
}

// parseStatement splits a shell statement into the database and the command
func parseStatement(input string) (string, bson.D, error) {
	database, rest, ok := strings.Cut(strings.TrimSpace(input), " ")
	if !ok || strings.TrimSpace(rest) == "" {
		return "", nil, fmt.Errorf("expected <db> <command>, e.g. admin {\"ping\": 1}")
	}
	command, err := util.ParseDocument(rest)
	if err != nil {
		return "", nil, err
	}
	if len(command) == 0 {
		return "", nil, fmt.Errorf("the command document is empty")
	}
	return database, command, nil
}
