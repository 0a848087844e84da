package repo

import (
	"context"
	"fmt"

	"listingfix/internal/infra"
	"listingfix/internal/sqlinline"
)

// Migrate creates the assets, fix_jobs and integration_tokens tables when
// they are missing.
func Migrate(ctx context.Context, sql infra.SQLExecutor) error {
	if _, err := sql.Exec(ctx, sqlinline.QEnsureSchema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
