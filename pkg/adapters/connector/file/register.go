package file

import (
	"context"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	"github.com/parcelworks/parcelsync/pkg/models"
)

func init() {
	connector.Register(connector.Registration{
		Info: connector.Info{
			Type:        models.BackendFile,
			DisplayName: "Flat File",
			Description: "CSV, JSON, or Excel files; GeoJSON and Shapefile export targets",
		},
		Factory: func(ctx context.Context, config map[string]any) (connector.Connector, error) {
			return FromMap(config)
		},
	})
}
