package store

import (
	"fmt"

	"theralink-server/internal/models"
)

// Ledger backends.
const (
	LedgerDatabase = "database"
	LedgerLevelDB  = "leveldb"
)

// Options selects and configures the storage backends.
type Options struct {
	Database      models.DatabaseConfig
	LedgerBackend string
	LedgerPath    string
	Migrate       bool
}

// Open builds the repositories described by opts. Database driver "memory"
// keeps patients and treatments in process memory.
func Open(opts Options) (*Stores, error) {
	var stores *Stores
	if opts.Database.Driver == "memory" {
		stores = NewMemoryStores()
	} else {
		open := models.Open
		if opts.Migrate {
			open = models.InitDB
		}
		db, err := open(opts.Database)
		if err != nil {
			return nil, fmt.Errorf("connect to %s database: %w", opts.Database.Driver, err)
		}
		stores = NewGormStores(db)
	}

	switch opts.LedgerBackend {
	case "", LedgerDatabase:
	case LedgerLevelDB:
		ledger, err := OpenLevelDBLedger(opts.LedgerPath)
		if err != nil {
			stores.Close()
			return nil, err
		}
		stores.Ledger = ledger
		stores.OnClose(ledger.Close)
	default:
		stores.Close()
		return nil, fmt.Errorf("unsupported ledger backend %q", opts.LedgerBackend)
	}
	return stores, nil
}
