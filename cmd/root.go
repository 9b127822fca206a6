package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BioHazard786/linkdrop/internal/ui"
	"github.com/BioHazard786/linkdrop/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagShareURL string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagTimeout  time.Duration
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "linkdrop",
	Short: "Peer-to-peer file transfer over WebRTC with share links",
	Long: `linkdrop sends files directly between two devices over a WebRTC data channel.
The sender gets a short room code and a share link; the receiver opens the
link in a browser or runs "linkdrop receive <code>". Only the connection
handshake goes through the coordination server; file bytes never do.`,
	Version: version.Version,
}

// Execute runs the root command. Interrupts cancel the command context so
// open connections are closed before exit.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", "", "Coordination server URL (env LINKDROP_SERVER)")
	pf.StringVar(&flagShareURL, "share-url", "", "Base URL for share links (env LINKDROP_SHARE_URL)")
	pf.StringVar(&flagSTUN, "stun", "", "Custom STUN server (env STUN_SERVER)")
	pf.StringVar(&flagTURN, "turn", "", "Custom TURN server (env TURN_SERVER)")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env TURN_USERNAME)")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env TURN_PASSWORD)")
	pf.BoolVarP(&flagRelay, "relay", "r", false, "Force relay mode (needs a TURN server)")
	pf.DurationVar(&flagTimeout, "timeout", 0, "How long a sender waits for a receiver (env LINKDROP_TIMEOUT, default 60s)")
}
