package plugin

import (
	"encoding/json"
	"fmt"

	"github.com/grafana/grafana-plugin-sdk-go/backend"
)

// Settings is the JSON configuration of one data source instance.
type Settings struct {
	ServerURL string `json:"server_url"`
}

// LoadSettings decodes the instance JSON data. The server address is checked when dialling.
func LoadSettings(source backend.DataSourceInstanceSettings) (*Settings, error) {
	var s Settings
	if len(source.JSONData) > 0 {
		if err := json.Unmarshal(source.JSONData, &s); err != nil {
			return nil, fmt.Errorf("could not unmarshal settings json: %w", err)
		}
	}
	return &s, nil
}
