package main

import (
	"context"

	"github.com/uralstat/realty-cli/internal/store"
)

// initStore opens the backend named in the config and runs migrations.
// Callers must Close the returned store.
func initStore(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, cfg.Store)
}
