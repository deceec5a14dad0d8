package serve

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	cmdUtil "github.com/ValentinKolb/dDB/cmd/util"
	"github.com/ValentinKolb/dDB/lib/db/engines/memory"
	"github.com/ValentinKolb/dDB/lib/store/lstore"
	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/server"
	"github.com/ValentinKolb/dDB/rpc/transport"
	"github.com/ValentinKolb/dDB/rpc/transport/http"
	"github.com/ValentinKolb/dDB/rpc/transport/tcp"
	"github.com/ValentinKolb/dDB/rpc/transport/unix"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dDB server",
		Long:    `Start the dDB server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is DDB_<flag> (e.g. DDB_LOG_LEVEL=debug)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "transport"
	ServeCmd.PersistentFlags().String(key, "tcp", cmdUtil.WrapString("The transport of the wire protocol server (tcp, unix)"))

	key = "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:27017", cmdUtil.WrapString("The address on which the wire protocol server will listen (e.g. 0.0.0.0:27017, /tmp/ddb.sock)"))

	key = "http-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("The address of the HTTP endpoint serving /{db}/cmd and /metrics (e.g. localhost:8080). Disabled if empty"))

	key = "timeout"
	ServeCmd.PersistentFlags().Int64(key, 0, cmdUtil.WrapString("Read and write timeout of a connection in seconds (0 disables the timeout)"))

	key = "max-message-size"
	ServeCmd.PersistentFlags().Int(key, common.DefaultMaxMessageSizeMB, cmdUtil.WrapString("The largest accepted wire message in MB"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "tcp-nodelay"
	ServeCmd.PersistentFlags().Bool(key, true, cmdUtil.WrapString("Whether to enable TCP_NODELAY on accepted connections (only for tcp)"))

	key = "tcp-keepalive"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The keepalive interval of accepted connections (in seconds, 0 disables it, only for tcp)"))

	key = "tcp-linger"
	ServeCmd.PersistentFlags().Int(key, -1, cmdUtil.WrapString("The linger time of accepted connections (in seconds, -1 keeps the OS default, only for tcp)"))

	key = "read-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The socket read buffer of accepted connections (in KB, 0 keeps the OS default)"))

	key = "write-buffer"
	ServeCmd.PersistentFlags().Int(key, 0, cmdUtil.WrapString("The socket write buffer of accepted connections (in KB, 0 keeps the OS default)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// read the configuration from the command line flags and environment variables
	serveCmdConfig.TransportName = viper.GetString("transport")
	serveCmdConfig.HTTPEndpoint = viper.GetString("http-endpoint")
	serveCmdConfig.TimeoutSecond = viper.GetInt64("timeout")
	serveCmdConfig.MaxMessageSizeMB = viper.GetInt("max-message-size")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.Transport = common.ServerTransportConfig{
		Endpoint: viper.GetString("endpoint"),
		SocketConf: common.SocketConf{
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		},
		TCPConf: common.TCPConf{
			TCPNoDelay:      viper.GetBool("tcp-nodelay"),
			TCPKeepAliveSec: viper.GetInt("tcp-keepalive"),
			TCPLingerSec:    viper.GetInt("tcp-linger"),
		},
	}

	if err := serveCmdConfig.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	return common.InitLoggers(*serveCmdConfig)
}

// run starts the dDB server and blocks until it fails or a signal arrives
func run(_ *cobra.Command, _ []string) error {
	defer common.SyncLoggers()

	// Parse the transport
	var t transport.IRPCServerTransport
	switch serveCmdConfig.TransportName {
	case "tcp":
		t = tcp.NewTCPServerTransport()
	case "unix":
		t = unix.NewUnixServerTransport()
	default:
		return fmt.Errorf("invalid transport %s", serveCmdConfig.TransportName)
	}

	transports := []transport.IRPCServerTransport{t}
	if serveCmdConfig.HTTPEndpoint != "" {
		transports = append(transports, http.NewHttpServerTransport())
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		lstore.NewLocalBackend(memory.NewEngine()),
		transports...,
	)

	// Close the server on SIGINT and SIGTERM
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(signals)
	go func() {
		if _, ok := <-signals; ok {
			server.Logger.Infof("Shutting down")
			_ = serv.Close()
		}
	}()

	return serv.Serve()
}
