package cmd

import (
	"fmt"

	"github.com/BioHazard786/linkdrop/internal/config"
	"github.com/BioHazard786/linkdrop/internal/signaling"
	"github.com/BioHazard786/linkdrop/internal/transfer"
)

// LoadConfig builds the client configuration from the persistent flags.
func LoadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		ServerURL:         flagServer,
		ShareURL:          flagShareURL,
		STUNServer:        flagSTUN,
		TURNServer:        flagTURN,
		TURNUser:          flagTURNUser,
		TURNPass:          flagTURNPass,
		ForceRelay:        flagRelay,
		RendezvousTimeout: flagTimeout,
	})
	if err != nil {
		return nil, transfer.NewError("load config", err)
	}

	if cfg.ForceRelay && cfg.GetTURNServers() == nil {
		return nil, fmt.Errorf("cannot force relay mode without TURN server configured")
	}

	return cfg, nil
}

func newCoordinator(cfg *config.Config) *signaling.Client {
	return signaling.NewClient(cfg.ServerURL)
}

// transferStats is what the summary table reports.
type transferStats struct {
	files    int
	bytes    int64
	duration float64
}

func (s transferStats) speedMiB() float64 {
	if s.duration <= 0 {
		return 0
	}
	return float64(s.bytes) / (1024 * 1024) / s.duration
}
