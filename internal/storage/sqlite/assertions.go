package sqlite

import "github.com/tinoosan/fintrack/internal/storage"

var (
	_ storage.Store = (*Store)(nil)
	_ storage.Tx    = (*tx)(nil)
)
