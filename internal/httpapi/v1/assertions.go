package v1

import (
	"github.com/tinoosan/fintrack/internal/storage/memory"
	"github.com/tinoosan/fintrack/internal/storage/postgres"
	"github.com/tinoosan/fintrack/internal/storage/sqlite"
)

// Compile-time assertions: /readyz can check every backend.
var (
	_ ReadyChecker = (*memory.Store)(nil)
	_ ReadyChecker = (*postgres.Store)(nil)
	_ ReadyChecker = (*sqlite.Store)(nil)
)
