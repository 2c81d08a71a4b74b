package main

import (
	"os"

	"github.com/grafana/grafana-plugin-sdk-go/backend/datasource"
	"github.com/grafana/grafana-plugin-sdk-go/backend/log"
	"github.com/pdl/orcastream/internal/plugin"
)

const pluginID = "pdl-orcastream-datasource"

func main() {
	// Grafana starts one process per plugin; each configured data source gets its own instance.
	if err := datasource.Manage(pluginID, plugin.NewDatasource, datasource.ManageOpts{}); err != nil {
		log.DefaultLogger.Error(err.Error())
		os.Exit(1)
	}
}
