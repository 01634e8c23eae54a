package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/models"
	"github.com/parcelworks/parcelsync/pkg/sqlutil"
)

// Extract pulls rows from a source table. For SQL backends a non-zero
// since becomes a watermark on the configured timestamp column; file
// backends are always read in full because flat files carry no usable
// change timestamps.
func Extract(ctx context.Context, source connector.Connector, cfg *models.TableConfiguration, since time.Time) ([]models.Row, []string, error) {
	switch conn := source.(type) {
	case connector.SQLConnector:
		query, params, err := sqlutil.SelectSince(conn.Dialect(), cfg.TableName, nil, cfg.TimestampField, since, cfg.Filter)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to build extraction query for %q: %w", cfg.TableName, err)
		}
		return conn.Query(ctx, query, params...)
	case connector.FileConnector:
		return conn.ReadAll(ctx)
	}
	return nil, nil, fmt.Errorf("backend %q supports no extraction", source.Kind())
}
