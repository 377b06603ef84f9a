package cli

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/nudge-project/nudge/pkg/config"
	"github.com/nudge-project/nudge/pkg/nudge"
)

// clientOptions seeds every nudge.Open call. Tests set Clock and Updater.
var clientOptions nudge.Options

// metricsGatherer is what the metrics command exposes. It must gather the
// registry clientOptions.Metrics registers with.
var metricsGatherer prometheus.Gatherer = prometheus.DefaultGatherer

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func resolveStateDir() string {
	if stateDir != "" {
		return stateDir
	}
	return config.DefaultStateDir()
}

func loadConfig() (*config.Config, error) {
	return config.Load(resolveConfigPath())
}

func openClient() (*nudge.Client, error) {
	opts := clientOptions
	opts.ConfigPath = resolveConfigPath()
	opts.StateDir = resolveStateDir()
	return nudge.Open(opts)
}
