package postgres

import (
	"context"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/models"
)

func init() {
	connector.Register(connector.Registration{
		Info: connector.Info{
			Type:        models.BackendPostgres,
			DisplayName: "PostgreSQL / PostGIS",
			Description: "Connect to PostgreSQL 12+ including PostGIS-enabled GIS databases",
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
