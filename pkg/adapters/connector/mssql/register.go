package mssql

import (
	"context"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/models"
)

func init() {
	connector.Register(connector.Registration{
		Info: connector.Info{
			Type:        models.BackendSQLServer,
			DisplayName: "Microsoft SQL Server",
			Description: "Connect to SQL Server 2016+ CAMA databases",
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
