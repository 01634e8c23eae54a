package sqlite

import (
	"context"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/models"
)

func init() {
	connector.Register(connector.Registration{
		Info: connector.Info{
			Type:        models.BackendSQLite,
			DisplayName: "SQLite",
			Description: "Connect to a local SQLite database file",
		},
		Factory: func(ctx context.Context, config map[string]any) (connector.Connector, error) {
			cfg, err := FromMap(config)
			if err != nil {
				return nil, err
			}
			return NewConnector(ctx, cfg)
		},
	})
}
