package e2e

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// RELAY_ADDR points the scenarios at a running relay, e.g.
	// ws://localhost:8080/ws. Scenarios are skipped when it is empty.
	RelayAddr string `envconfig:"RELAY_ADDR"`
	// E2E_TIMEOUT bounds each wait inside a scenario.
	TimeoutSeconds int `envconfig:"E2E_TIMEOUT" default:"5"`
}

func LoadConfig() (Config, error) {
	var cfg Config
	err := envconfig.Process("", &cfg)
	return cfg, err
}
