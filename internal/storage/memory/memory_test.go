package memory

import (
	"context"
	"testing"

	"github.com/tinoosan/fintrack/internal/storage"
	"github.com/tinoosan/fintrack/internal/storage/storagetest"
)

func TestStore(t *testing.T) {
	storagetest.Run(t, New())
}

func TestInTx_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := New().InTx(ctx, func(storage.Tx) error { called = true; return nil })
	if err == nil || called {
		t.Fatalf("expected canceled context to short-circuit, err=%v called=%v", err, called)
	}
}
