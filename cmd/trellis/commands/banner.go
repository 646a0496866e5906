package commands

import (
	"fmt"

	"github.com/pterm/pterm"

	"github.com/teranos/trellis/am"
	"github.com/teranos/trellis/logger"
	"github.com/teranos/trellis/version"
)

// printStartupBanner prints the user-friendly startup message
func printStartupBanner(verbosity int, cfg *am.Config) {
	versionInfo := version.Get()

	pterm.DefaultHeader.WithFullWidth().Println("trellis")

	storageDesc := cfg.Storage.Backend
	switch cfg.Storage.Backend {
	case am.StorageSQLite:
		storageDesc += " (" + cfg.Storage.Path + ")"
	case am.StorageS3:
		storageDesc += " (s3://" + cfg.Storage.S3.Bucket + "/" + cfg.Storage.S3.Prefix + ")"
	}
	analyticsDesc := cfg.Analytics.Backend
	if cfg.Analytics.Backend == am.AnalyticsNATS {
		analyticsDesc += " (" + cfg.Analytics.NATSURL + ")"
	}

	pterm.DefaultTable.WithData(pterm.TableData{
		{"Version", fmt.Sprintf("%s (commit %s)", versionInfo.Version, versionInfo.Short())},
		{"Built", versionInfo.BuildTime},
		{"Verbosity", logger.LevelName(verbosity)},
		{"Listen", fmt.Sprintf("ws://localhost:%d/ws", cfg.Server.Port)},
		{"Storage", storageDesc},
		{"Analytics", analyticsDesc},
		{"Timezone", cfg.Location().String()},
	}).Render()

	pterm.Info.Println("Press Ctrl+C to stop")
}
