package lstore

import (
	"slices"
	"strings"

	"github.com/ValentinKolb/dDB/lib/db"
	"github.com/ValentinKolb/dDB/lib/store"
	"github.com/puzpuzpuz/xsync/v3"
)

// MaxDatabaseNameLength is the maximum length of a database name
const MaxDatabaseNameLength = 64

type backendImpl struct {
	engine    db.IEngine
	databases *xsync.MapOf[string, store.IDatabase]
}

// NewLocalBackend creates a new local backend instance.
// All databases live in process memory and are created by the given engine.
// Nothing is persisted, a restart yields an empty backend.
func NewLocalBackend(engine db.IEngine) store.IBackend {
	return &backendImpl{
		engine:    engine,
		databases: xsync.NewMapOf[string, store.IDatabase](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (b *backendImpl) Database(name string) (store.IDatabase, error) {
	if err := checkDatabaseName(name); err != nil {
		return nil, err
	}

	// LoadOrCompute runs the constructor at most once per name
	database, loaded := b.databases.LoadOrCompute(name, func() store.IDatabase {
		return NewDatabase(name, b.engine, b.DropDatabase)
	})
	if !loaded {
		log.Infof("created database %s", name)
	}
	return database, nil
}

func (b *backendImpl) DropDatabase(name string) {
	b.databases.Delete(name)
}

func (b *backendImpl) DatabaseNames() []string {
	names := make([]string, 0, b.databases.Size())
	b.databases.Range(func(name string, _ store.IDatabase) bool {
		names = append(names, name)
		return true
	})
	slices.Sort(names)
	return names
}

func (b *backendImpl) HandleClose(conn store.ConnID) {
	b.databases.Range(func(_ string, database store.IDatabase) bool {
		database.HandleClose(conn)
		return true
	})
}

// --------------------------------------------------------------------------
// Helper Functions
// --------------------------------------------------------------------------

func checkDatabaseName(name string) error {
	if name == "" || strings.ContainsAny(name, "/\\. \"$\x00") {
		return db.ErrInvalidNamespace(name)
	}
	if len(name) > MaxDatabaseNameLength {
		return db.ErrNamespaceTooLong(MaxDatabaseNameLength)
	}
	return nil
}
