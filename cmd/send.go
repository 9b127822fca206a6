package cmd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/BioHazard786/linkdrop/internal/config"
	"github.com/BioHazard786/linkdrop/internal/files"
	"github.com/BioHazard786/linkdrop/internal/rendezvous"
	"github.com/BioHazard786/linkdrop/internal/session"
	"github.com/BioHazard786/linkdrop/internal/transfer"
	"github.com/BioHazard786/linkdrop/internal/ui"
	"github.com/BioHazard786/linkdrop/internal/utils"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:     "send <file>...",
	Aliases: []string{"s"},
	Short:   "Send files to a receiver",
	Long: `Create a room and send files to whoever joins it.

Files are sent one after another over a single connection.

Examples:
  linkdrop send report.pdf
  linkdrop send --timeout 2m photo1.jpg photo2.jpg
  linkdrop send --relay --turn turn.example.com file.txt`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return sendFiles(cmd.Context(), args)
	},
}

func sendFiles(ctx context.Context, paths []string) error {
	stopSpinner := ui.RunSpinner("Validating files...")
	fileInfos, err := files.ValidateFiles(paths)
	stopSpinner()
	if err != nil {
		return err
	}
	displayFileTable(fileInfos)

	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	view := &sendView{timeout: cfg.TimeoutTicks()}
	sess := session.NewSendSession(session.SendOptions{
		Coordinator:    newCoordinator(cfg),
		NewPeer:        session.WebRTCPeers(cfg),
		PollInterval:   cfg.PollInterval,
		TimeoutTicks:   cfg.TimeoutTicks(),
		ConnectTimeout: cfg.ConnectTimeout,
		ShareLink:      cfg.GetRoomLink,
		Observer:       view.observer(),
	})
	defer sess.Close()
	defer view.stop()

	start := time.Now()
	for _, f := range fileInfos {
		if err := sendWithRetry(ctx, sess, view, cfg, f); err != nil {
			return err
		}
	}

	view.setState("Waiting for the receiver to catch up...")
	if err := sess.Drain(ctx); err != nil {
		return transfer.NewError("drain", err)
	}
	view.stop()

	completed := sess.Completed()
	fmt.Println()
	ui.RenderCompletedTable(completed.Items())
	renderSummary(transferStats{
		files:    completed.Len(),
		bytes:    completed.TotalSize(),
		duration: time.Since(start).Seconds(),
	})
	return nil
}

// sendWithRetry sends one file. A rendezvous timeout asks the user whether
// to open a fresh room; any other error ends the run.
func sendWithRetry(ctx context.Context, sess *session.SendSession, view *sendView, cfg *config.Config, f files.FileInfo) error {
	for {
		var last transfer.Progress
		err := sess.SendPath(ctx, f.Path, f.Name, func(p transfer.Progress) {
			last = p
			view.progress(p)
		})
		if err == nil {
			view.complete(last)
			return nil
		}

		if !errors.Is(err, rendezvous.ErrRendezvousTimeout) {
			if last.SessionID != "" {
				view.fail(last, err)
			}
			return transfer.NewFileError("send", f.Name, err)
		}

		view.stop()
		ui.PrintWarningf("No receiver joined within %s.", cfg.RendezvousTimeout)
		retry, perr := askRetry()
		if perr != nil || !retry {
			return err
		}
		sess.Reset()
	}
}

func askRetry() (bool, error) {
	p, err := ui.NewPrompter()
	if err != nil {
		return false, err
	}
	defer p.Close()
	return p.Confirm("Create a new room and try again?")
}

// sendView switches from the room box and countdown spinner to the live
// progress UI once the receiver is connected. Most callbacks arrive on the
// send loop's goroutine; a lost connection is reported from the watcher.
type sendView struct {
	timeout int

	mu      sync.Mutex
	spinner *ui.SimpleSpinner
	live    *ui.TransferUI
}

func (v *sendView) observer() rendezvous.SenderObserver {
	return rendezvous.SenderObserver{
		OnPhase: func(p rendezvous.SenderPhase) {
			switch p {
			case rendezvous.SenderCreatingRoom:
				v.spin(ui.NewConnectionSpinner("Creating room..."))
			case rendezvous.SenderConnecting:
				v.spin(ui.NewConnectionSpinner("Receiver joined, connecting..."))
			case rendezvous.SenderConnected:
				v.stopSpinner()
				ui.PrintSuccess("Connected to receiver")
				v.mu.Lock()
				v.live = ui.NewTransferUI(ui.ModeSend)
				v.live.Start()
				v.mu.Unlock()
			case rendezvous.SenderTimedOut:
				v.stopSpinner()
			case rendezvous.SenderFailed:
				v.stopSpinner()
				v.setState("Connection lost")
			}
		},
		OnRoom: func(roomID, link string) {
			v.stopSpinner()
			fmt.Println()
			ui.RenderRoomInfo(roomID, link)
			fmt.Println()
			v.spin(ui.NewWaitingSpinner(ui.CountdownMessage(v.timeout)))
		},
		OnCountdown: func(remaining int) {
			v.mu.Lock()
			defer v.mu.Unlock()
			if v.spinner != nil {
				v.spinner.UpdateMessage(ui.CountdownMessage(remaining))
			}
		},
	}
}

func (v *sendView) spin(s *ui.SimpleSpinner) {
	v.stopSpinner()
	v.mu.Lock()
	v.spinner = s
	v.mu.Unlock()
	s.Start()
}

func (v *sendView) stopSpinner() {
	v.mu.Lock()
	s := v.spinner
	v.spinner = nil
	v.mu.Unlock()
	if s != nil {
		s.Stop()
	}
}

func (v *sendView) liveUI() *ui.TransferUI {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.live
}

func (v *sendView) progress(p transfer.Progress) {
	if live := v.liveUI(); live != nil {
		live.Update(p)
	}
}

func (v *sendView) complete(p transfer.Progress) {
	if live := v.liveUI(); live != nil && p.SessionID != "" {
		live.Complete(p)
	}
}

func (v *sendView) fail(p transfer.Progress, err error) {
	if live := v.liveUI(); live != nil {
		live.Fail(p, err)
	}
}

func (v *sendView) setState(s string) {
	if live := v.liveUI(); live != nil {
		live.SetState(s)
	}
}

func (v *sendView) stop() {
	v.stopSpinner()
	v.mu.Lock()
	live := v.live
	v.live = nil
	v.mu.Unlock()
	if live != nil {
		live.Stop()
	}
}

func displayFileTable(fileInfos []files.FileInfo) {
	items := make([]ui.FileTableItem, len(fileInfos))
	for i, f := range fileInfos {
		items[i] = ui.FileTableItem{Index: i + 1, Name: f.Name, Size: f.Size, Type: f.Type}
	}
	fmt.Println()
	ui.RenderFileTable(items)
	ui.PrintInfof("%d file(s), %s total", len(fileInfos), utils.FormatSize(files.GetTotalSize(fileInfos)))
}

func renderSummary(stats transferStats) {
	fmt.Println()
	ui.RenderTransferSummary("📊 Transfer Summary", ui.TransferSummary{
		Status:    "✅ Complete",
		Files:     stats.files,
		TotalSize: utils.FormatSize(stats.bytes),
		Duration:  fmt.Sprintf("%.2f seconds", stats.duration),
		Speed:     fmt.Sprintf("%.2f MiB/s", stats.speedMiB()),
	})
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
