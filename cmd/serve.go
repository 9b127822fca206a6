package cmd

import (
	"time"

	"github.com/BioHazard786/linkdrop/internal/config"
	"github.com/BioHazard786/linkdrop/internal/coordinator"
	"github.com/BioHazard786/linkdrop/internal/logging"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagServeAddr string
	flagServeDB   string
	flagServeTTL  time.Duration
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a room coordination server",
	Long: `Run the HTTP service senders and receivers use to exchange connection
details. Rooms live in memory unless --db points at a SQLite file.

Examples:
  linkdrop serve --addr :8080
  linkdrop serve --db rooms.db --ttl 15m --share-url https://send.example.com/`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := config.LoadServer(config.ServerOptions{
			Addr:     flagServeAddr,
			ShareURL: flagShareURL,
			DBPath:   flagServeDB,
			RoomTTL:  flagServeTTL,
		})
		if err != nil {
			return err
		}
		logging.DefaultTo(logrus.InfoLevel)
		return coordinator.ListenAndServe(cmd.Context(), opts)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "Listen address (env LINKDROP_ADDR, default :8080)")
	serveCmd.Flags().StringVar(&flagServeDB, "db", "", "SQLite database path, empty keeps rooms in memory (env LINKDROP_DB)")
	serveCmd.Flags().DurationVar(&flagServeTTL, "ttl", 0, "How long an unjoined room stays open (default 10m)")
}
