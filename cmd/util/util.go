package util

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/dDB/rpc/client"
	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/serializer"
	"github.com/ValentinKolb/dDB/rpc/transport"
	"github.com/ValentinKolb/dDB/rpc/transport/tcp"
	"github.com/ValentinKolb/dDB/rpc/transport/unix"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tailscale/hujson"
	"go.mongodb.org/mongo-driver/bson"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables read by dDB
	EnvPrefix = "ddb"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read DDB_* environment
// variables. Dashes in flag names become underscores (--log-level is
// DDB_LOG_LEVEL).
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client
// --------------------------------------------------------------------------

// SetupRPCClientFlags adds common RPC connection flags to a command
func SetupRPCClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "transport"
	cmd.PersistentFlags().String(key, "tcp", WrapString("The transport used to reach the server (tcp, unix)"))

	key = "endpoint"
	cmd.PersistentFlags().String(key, "localhost:27017", WrapString("The address of the dDB server (e.g. localhost:27017, /tmp/ddb.sock)"))

	key = "json-canonical"
	cmd.PersistentFlags().Bool(key, false, WrapString("Print documents as canonical instead of relaxed Extended JSON"))

	key = "transport-write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer (in KB, 0 keeps the OS default)"))

	key = "transport-read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer (in KB, 0 keeps the OS default)"))

	key = "transport-tcp-nodelay"
	cmd.PersistentFlags().Bool(key, true, WrapString("Whether to enable TCP_NODELAY (only for tcp)"))

	key = "transport-tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("The keepalive interval (in seconds, only for tcp)"))

	key = "transport-tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("The linger time (in seconds, -1 keeps the OS default, only for tcp)"))
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	return &common.ClientConfig{
		TimeoutSecond: viper.GetInt("timeout"),
		Transport: common.ClientTransportConfig{
			Endpoint: viper.GetString("endpoint"),
			SocketConf: common.SocketConf{
				WriteBufferSize: viper.GetInt("transport-write-buffer") * 1024,
				ReadBufferSize:  viper.GetInt("transport-read-buffer") * 1024,
			},
			TCPConf: common.TCPConf{
				TCPKeepAliveSec: viper.GetInt("transport-tcp-keepalive"),
				TCPLingerSec:    viper.GetInt("transport-tcp-linger"),
				TCPNoDelay:      viper.GetBool("transport-tcp-nodelay"),
			},
		},
	}
}

// GetTransport creates the client transport based on configuration
func GetTransport() (transport.IRPCClientTransport, error) {
	switch viper.GetString("transport") {
	case "tcp":
		return tcp.NewTCPClientTransport(), nil
	case "unix":
		return unix.NewUnixClientTransport(), nil
	default:
		return nil, fmt.Errorf("invalid transport %s", viper.GetString("transport"))
	}
}

// NewClient connects a new client with the configuration read from viper
func NewClient() (*client.RPCClient, error) {
	t, err := GetTransport()
	if err != nil {
		return nil, err
	}
	return client.NewRPCClient(*GetClientConfig(), t)
}

// --------------------------------------------------------------------------
// Documents
// --------------------------------------------------------------------------

var relaxedJSON = serializer.NewJSONSerializer(false)

// ParseDocument parses a relaxed Extended JSON document given on the command
// line. Comments and trailing commas are allowed. An empty string is the
// empty document.
func ParseDocument(text string) (bson.D, error) {
	if strings.TrimSpace(text) == "" {
		return bson.D{}, nil
	}
	standardized, err := hujson.Standardize([]byte(text))
	if err != nil {
		return nil, fmt.Errorf("invalid document %q: %w", text, err)
	}
	var doc bson.D
	if err := relaxedJSON.Deserialize(standardized, &doc); err != nil {
		return nil, fmt.Errorf("invalid document %q: %w", text, err)
	}
	return doc, nil
}

// FormatDocument renders doc as Extended JSON, canonical if --json-canonical is set
func FormatDocument(doc bson.D) (string, error) {
	s := serializer.NewJSONSerializer(viper.GetBool("json-canonical"))
	data, err := s.Serialize(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}
