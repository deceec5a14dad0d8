package server

import (
	"fmt"
	"math/rand/v2"
	"os"
	"runtime"
	"time"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/document"
	"github.com/ValentinKolb/dDB/lib/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ServerVersion is the server version reported to drivers
const ServerVersion = "3.0.0"

// maxBsonObjectSize is the largest document accepted by drivers
const maxBsonObjectSize = 16 * 1024 * 1024

// adminCommand is a command answered by the server without a database
type adminCommand func(a *wireAdapter, conn store.ConnID, cmd bson.D) (bson.D, error)

// adminCommands maps lower case command names onto their handlers
var adminCommands = map[string]adminCommand{
	"ismaster":      (*wireAdapter).cmdIsMaster,
	"hello":         (*wireAdapter).cmdIsMaster,
	"buildinfo":     (*wireAdapter).cmdBuildInfo,
	"whatsmyuri":    (*wireAdapter).cmdWhatsMyURI,
	"getnonce":      (*wireAdapter).cmdGetNonce,
	"ping":          (*wireAdapter).cmdPing,
	"listdatabases": (*wireAdapter).cmdListDatabases,
	"getlog":        (*wireAdapter).cmdGetLog,
	"serverstatus":  (*wireAdapter).cmdServerStatus,
}

// --------------------------------------------------------------------------
// Command Handlers
// --------------------------------------------------------------------------

func (a *wireAdapter) cmdIsMaster(_ store.ConnID, _ bson.D) (bson.D, error) {
	return bson.D{
		{Key: "ismaster", Value: true},
		{Key: "maxBsonObjectSize", Value: int32(maxBsonObjectSize)},
		{Key: "maxMessageSizeBytes", Value: int32(a.config.MaxMessageSize())},
		{Key: "maxWriteBatchSize", Value: int32(1000)},
		{Key: "localTime", Value: primitive.NewDateTimeFromTime(time.Now())},
		{Key: "maxWireVersion", Value: int32(0)},
		{Key: "minWireVersion", Value: int32(0)},
		{Key: "ok", Value: 1.0},
	}, nil
}

func (a *wireAdapter) cmdBuildInfo(_ store.ConnID, _ bson.D) (bson.D, error) {
	return bson.D{
		{Key: "version", Value: ServerVersion},
		{Key: "gitVersion", Value: "dDB"},
		{Key: "versionArray", Value: bson.A{int32(3), int32(0), int32(0), int32(0)}},
		{Key: "sysInfo", Value: fmt.Sprintf("%s %s %s", runtime.GOOS, runtime.GOARCH, runtime.Version())},
		{Key: "bits", Value: int32(64)},
		{Key: "maxBsonObjectSize", Value: int32(maxBsonObjectSize)},
		{Key: "ok", Value: 1.0},
	}, nil
}

func (a *wireAdapter) cmdWhatsMyURI(conn store.ConnID, _ bson.D) (bson.D, error) {
	return bson.D{
		{Key: "you", Value: fmt.Sprintf("conn%d", conn)},
		{Key: "ok", Value: 1.0},
	}, nil
}

func (a *wireAdapter) cmdGetNonce(_ store.ConnID, _ bson.D) (bson.D, error) {
	return bson.D{
		{Key: "nonce", Value: fmt.Sprintf("%016x", rand.Uint64())},
		{Key: "ok", Value: 1.0},
	}, nil
}

func (a *wireAdapter) cmdPing(_ store.ConnID, _ bson.D) (bson.D, error) {
	return bson.D{{Key: "ok", Value: 1.0}}, nil
}

// cmdListDatabases lists every database of the backend. Nothing is stored on
// disk, so all sizes are 0.
func (a *wireAdapter) cmdListDatabases(_ store.ConnID, _ bson.D) (bson.D, error) {
	databases := bson.A{}
	for _, name := range a.backend.DatabaseNames() {
		database, err := a.backend.Database(name)
		if err != nil {
			continue
		}
		databases = append(databases, bson.D{
			{Key: "name", Value: name},
			{Key: "sizeOnDisk", Value: int64(0)},
			{Key: "empty", Value: database.IsEmpty()},
		})
	}
	return bson.D{
		{Key: "databases", Value: databases},
		{Key: "totalSize", Value: int64(0)},
		{Key: "ok", Value: 1.0},
	}, nil
}

// cmdGetLog only knows the startupWarnings log, which is always empty
func (a *wireAdapter) cmdGetLog(_ store.ConnID, cmd bson.D) (bson.D, error) {
	switch v := cmd[0].Value.(type) {
	case string:
		switch v {
		case "*":
			return bson.D{
				{Key: "names", Value: bson.A{"startupWarnings"}},
				{Key: "ok", Value: 1.0},
			}, nil
		case "startupWarnings":
			return bson.D{
				{Key: "totalLinesWritten", Value: int32(0)},
				{Key: "log", Value: bson.A{}},
				{Key: "ok", Value: 1.0},
			}, nil
		default:
			return nil, db.ErrInvalidArgument("no RamLog named: %s", v)
		}
	default:
		return nil, db.ErrInvalidArgument("argument to getLog must be of type String; found %s of type %s", fmt.Sprint(v), document.TypeOf(v))
	}
}

func (a *wireAdapter) cmdServerStatus(_ store.ConnID, _ bson.D) (bson.D, error) {
	host, err := os.Hostname()
	if err != nil {
		host = "localhost"
	}
	uptime := time.Since(a.started)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return bson.D{
		{Key: "host", Value: host},
		{Key: "version", Value: ServerVersion},
		{Key: "process", Value: "ddb"},
		{Key: "pid", Value: int64(os.Getpid())},
		{Key: "uptime", Value: uptime.Seconds()},
		{Key: "uptimeMillis", Value: uptime.Milliseconds()},
		{Key: "localTime", Value: primitive.NewDateTimeFromTime(time.Now())},
		{Key: "mem", Value: bson.D{
			{Key: "bits", Value: int32(64)},
			{Key: "resident", Value: int64(mem.Sys / (1024 * 1024))},
		}},
		{Key: "ok", Value: 1.0},
	}, nil
}
