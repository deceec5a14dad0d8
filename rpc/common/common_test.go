package common

import (
	"testing"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug":   logger.DEBUG,
		"INFO":    logger.INFO,
		"warn":    logger.WARNING,
		"warning": logger.WARNING,
		"Error":   logger.ERROR,
	}
	for in, want := range cases {
		got, err := parseLogLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLogLevel("verbose")
	assert.Error(t, err)
}

func TestInitLoggers(t *testing.T) {
	require.Error(t, InitLoggers(ServerConfig{LogLevel: "loud"}))
	require.NoError(t, InitLoggers(ServerConfig{LogLevel: "error"}))

	// must not panic at any level
	l := logger.GetLogger("store")
	l.Debugf("hidden %d", 1)
	l.Errorf("shown %d", 2)
	SyncLoggers()
}

func TestMaxMessageSize(t *testing.T) {
	c := ServerConfig{}
	assert.Equal(t, DefaultMaxMessageSizeMB*1024*1024, c.MaxMessageSize())

	c.MaxMessageSizeMB = 2
	assert.Equal(t, 2*1024*1024, c.MaxMessageSize())
}

func TestConfigString(t *testing.T) {
	c := ServerConfig{
		TransportName: "tcp",
		Transport:     ServerTransportConfig{Endpoint: "127.0.0.1:27017"},
		LogLevel:      "info",
	}
	out := c.String()
	assert.Contains(t, out, "WIRE PROTOCOL SERVER")
	assert.Contains(t, out, "127.0.0.1:27017")
	assert.Contains(t, out, "SOCKET")
	assert.Contains(t, out, "disabled")

	c.TransportName = "unix"
	c.HTTPEndpoint = ":8080"
	out = c.String()
	assert.NotContains(t, out, "SOCKET")
	assert.Contains(t, out, ":8080")

	cc := ClientConfig{Transport: ClientTransportConfig{Endpoint: "localhost:27017"}, TimeoutSecond: 5}
	assert.Contains(t, cc.String(), "5 sec")
}

func TestValidate(t *testing.T) {
	valid := ServerConfig{
		TransportName: "tcp",
		Transport: ServerTransportConfig{
			Endpoint: "0.0.0.0:27017",
			TCPConf:  TCPConf{TCPNoDelay: true, TCPLingerSec: -1},
		},
		MaxMessageSizeMB: DefaultMaxMessageSizeMB,
	}
	require.NoError(t, valid.Validate())

	invalid := map[string]func(c *ServerConfig){
		"transport":    func(c *ServerConfig) { c.TransportName = "udp" },
		"endpoint":     func(c *ServerConfig) { c.Transport.Endpoint = "" },
		"timeout":      func(c *ServerConfig) { c.TimeoutSecond = -1 },
		"message size": func(c *ServerConfig) { c.MaxMessageSizeMB = 4096 },
		"linger":       func(c *ServerConfig) { c.Transport.TCPLingerSec = -2 },
		"buffer":       func(c *ServerConfig) { c.Transport.ReadBufferSize = -1 },
	}
	for name, mutate := range invalid {
		c := valid
		mutate(&c)
		assert.Error(t, c.Validate(), name)
	}
}
