package common

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// --------------------------------------------------------------------------
// Transport configuration (shared by server and client)
// --------------------------------------------------------------------------

// SocketConf holds socket buffer settings. Zero keeps the OS default.
type SocketConf struct {
	WriteBufferSize int `validate:"gte=0"`
	ReadBufferSize  int `validate:"gte=0"`
}

// TCPConf holds TCP specific socket options.
type TCPConf struct {
	TCPNoDelay      bool
	TCPKeepAliveSec int `validate:"gte=0"`  // 0 disables keep-alive
	TCPLingerSec    int `validate:"gte=-1"` // -1 keeps the OS default
}

// ServerTransportConfig configures the listener of the wire protocol server.
type ServerTransportConfig struct {
	// Endpoint is a host:port for tcp or a socket path for unix
	Endpoint string `validate:"required"`
	SocketConf
	TCPConf
}

// ClientTransportConfig configures the connection of a client.
type ClientTransportConfig struct {
	Endpoint string
	SocketConf
	TCPConf
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

// ServerConfig holds all configuration parameters of a server process.
type ServerConfig struct {
	// Name of the transport used for the wire protocol ("tcp" or "unix")
	TransportName string `validate:"oneof=tcp unix"`
	Transport     ServerTransportConfig

	// HTTPEndpoint enables the JSON command and metrics endpoint if not empty
	HTTPEndpoint string

	// Read and write deadline per message, 0 disables deadlines
	TimeoutSecond int64 `validate:"gte=0"`

	// Maximum accepted wire message size in MB, the size in bytes must fit
	// into an int32
	MaxMessageSizeMB int `validate:"gte=0,lte=2047"`

	// Logging configuration
	LogLevel string
}

// Validate checks the value ranges of the configuration
func (c *ServerConfig) Validate() error {
	return validate.Struct(c)
}

// MaxMessageSize returns the maximum wire message size in bytes.
func (c *ServerConfig) MaxMessageSize() int {
	if c.MaxMessageSizeMB <= 0 {
		return DefaultMaxMessageSizeMB * 1024 * 1024
	}
	return c.MaxMessageSizeMB * 1024 * 1024
}

// DefaultMaxMessageSizeMB is used if no maximum message size is configured
const DefaultMaxMessageSizeMB = 48

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Wire protocol settings
	addSection("Wire Protocol Server")
	addField("Transport", c.TransportName)
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
	addField("Max Message Size", fmt.Sprintf("%d MB", c.MaxMessageSize()/(1024*1024)))

	if c.TransportName == "tcp" {
		addSection("Socket")
		addField("TCP No Delay", fmt.Sprintf("%t", c.Transport.TCPNoDelay))
		addField("TCP Keep Alive", fmt.Sprintf("%d sec", c.Transport.TCPKeepAliveSec))
		addField("TCP Linger", fmt.Sprintf("%d sec", c.Transport.TCPLingerSec))
		addField("Read Buffer", fmt.Sprintf("%d bytes", c.Transport.ReadBufferSize))
		addField("Write Buffer", fmt.Sprintf("%d bytes", c.Transport.WriteBufferSize))
	}

	// HTTP settings
	addSection("HTTP")
	if c.HTTPEndpoint == "" {
		addField("Endpoint", "disabled")
	} else {
		addField("Endpoint", c.HTTPEndpoint)
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	Transport     ClientTransportConfig
	TimeoutSecond int
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// General Client Settings
	addSection("Client Configuration")
	addField("Endpoint", c.Transport.Endpoint)
	addField("Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))

	return sb.String()
}
