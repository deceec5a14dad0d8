package server

import (
	"os/signal"
	"runtime"
	"syscall"

	"github.com/ValentinKolb/dDB/lib/store"
	"github.com/ValentinKolb/dDB/rpc/common"
	"github.com/ValentinKolb/dDB/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
	"golang.org/x/sync/errgroup"
)

var Logger = logger.GetLogger("rpc")

// NewRPCServer creates a new RPC server
// It serves the databases of backend on every given transport. All
// transports share one adapter, so connection ids and per connection state
// are consistent across them.
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		lstore.NewLocalBackend(memory.NewEngine()),
//		tcp.NewTCPServerTransport(),
//		http.NewHttpServerTransport(),
//	)
//
//	if err := s.Serve(); err != nil {
//		panic(err)
//	}
func NewRPCServer(
	config common.ServerConfig,
	backend store.IBackend,
	transports ...transport.IRPCServerTransport,
) *RPCServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	return &RPCServer{
		config:     config,
		transports: transports,
		adapter:    NewWireAdapter(config, backend),
	}
}

type RPCServer struct {
	config     common.ServerConfig
	transports []transport.IRPCServerTransport
	adapter    IRPCServerAdapter
}

// registerTransportHandler connects every transport with the adapter
func (s *RPCServer) registerTransportHandler() {
	for _, t := range s.transports {
		t.RegisterHandler(s.adapter.Handle)
		t.RegisterCloseHandler(s.adapter.HandleClose)
	}
}

// Serve starts all transports and blocks until one of them fails or the
// server is closed. The first transport listens on config.Transport, the
// others (the HTTP transport) on their own endpoints.
func (s *RPCServer) Serve() error {
	s.registerTransportHandler()

	var g errgroup.Group
	for _, t := range s.transports {
		g.Go(func() error {
			err := t.Listen(s.config)
			if err != nil {
				// one failing transport stops the server
				_ = s.Close()
			}
			return err
		})
	}
	return g.Wait()
}

// Close stops all transports
func (s *RPCServer) Close() error {
	var firstErr error
	for _, t := range s.transports {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
