package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/BioHazard786/linkdrop/internal/rendezvous"
	"github.com/BioHazard786/linkdrop/internal/session"
	"github.com/BioHazard786/linkdrop/internal/transfer"
	"github.com/BioHazard786/linkdrop/internal/ui"
	"github.com/BioHazard786/linkdrop/internal/utils"
	"github.com/spf13/cobra"
)

var (
	flagReceiverZip bool
	flagReceiverDir string
)

var receiveCmd = &cobra.Command{
	Use:     "receive [link|code]",
	Aliases: []string{"r"},
	Short:   "Receive files from a sender",
	Long: `Join a sender's room and save every file it sends.

Pass the share link or the 7 character room code. Without an argument
you are asked for one.

Examples:
  linkdrop receive Ab3dE5f
  linkdrop receive "https://send.xxsfish.com/?room=Ab3dE5f"
  linkdrop receive --dir ~/Downloads --zip`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := roomReference(args)
		if err != nil {
			return err
		}
		return receiveFiles(cmd.Context(), ref)
	},
}

func roomReference(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	p, err := ui.NewPrompter()
	if err != nil {
		return "", err
	}
	defer p.Close()
	return p.RoomCode()
}

func receiveFiles(ctx context.Context, ref string) error {
	cfg, err := LoadConfig()
	if err != nil {
		return err
	}

	opts, tempDir, cleanup, err := prepareTransferOptions(flagReceiverZip, flagReceiverDir)
	if err != nil {
		return err
	}
	if cleanup != nil {
		defer cleanup()
	}

	view := &receiveView{inFlight: make(map[string]transfer.Progress)}
	defer view.stop()

	sess := session.NewReceiveSession(session.ReceiveOptions{
		Coordinator:    newCoordinator(cfg),
		NewPeer:        session.WebRTCPeers(cfg),
		ConnectTimeout: cfg.ConnectTimeout,
		OnPhase:        view.phase,
		Store:          transfer.NewDiskStore(opts),
		Hooks:          view.hooks(),
	})
	defer sess.Close()

	fmt.Println()
	start := time.Now()
	if err := sess.Join(ctx, ref); err != nil {
		return describeJoinError(err)
	}
	view.connected(sess.State().RoomID)

	waitErr := sess.Wait(ctx)
	if p, ok := sess.Current(); ok {
		view.fail(p, transfer.ErrChannelClosed)
	}
	view.stop()
	if waitErr != nil && !errors.Is(waitErr, context.Canceled) {
		return transfer.NewError("receive", waitErr)
	}

	completed := sess.Completed()
	if completed.Len() == 0 {
		ui.PrintWarning("No files were received")
		return nil
	}

	fmt.Println()
	ui.RenderCompletedTable(completed.Items())
	renderSummary(transferStats{
		files:    completed.Len(),
		bytes:    completed.TotalSize(),
		duration: time.Since(start).Seconds(),
	})

	return finalizeTransfer(flagReceiverZip, flagReceiverDir, tempDir)
}

func describeJoinError(err error) error {
	switch {
	case errors.Is(err, rendezvous.ErrInvalidRoomID):
		return fmt.Errorf("that is not a room link or code")
	case errors.Is(err, rendezvous.ErrRoomNotFound):
		return fmt.Errorf("room not found, it may have expired")
	case errors.Is(err, rendezvous.ErrRoomFull):
		return fmt.Errorf("someone else already joined this room")
	}
	return transfer.NewError("join room", err)
}

// receiveView drives the spinner during the handshake and the live
// progress UI afterwards. Phase callbacks run on the joining goroutine
// while transfer hooks run on the data channel's goroutine.
type receiveView struct {
	mu       sync.Mutex
	spinner  *ui.SimpleSpinner
	live     *ui.TransferUI
	inFlight map[string]transfer.Progress
}

func (v *receiveView) phase(p rendezvous.ReceiverPhase) {
	switch p {
	case rendezvous.ReceiverCheckingRoom:
		v.spin("Checking room...")
	case rendezvous.ReceiverFetchingSignal:
		v.spin("Fetching sender details...")
	case rendezvous.ReceiverConnecting:
		v.spin("Connecting to sender...")
	case rendezvous.ReceiverConnected, rendezvous.ReceiverError:
		v.mu.Lock()
		v.stopSpinnerLocked()
		v.mu.Unlock()
	}
}

// connected announces the room unless files are already streaming.
func (v *receiveView) connected(roomID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.live == nil {
		ui.PrintSuccessf("Connected to room %s, waiting for files", roomID)
	}
}

func (v *receiveView) spin(msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.spinner != nil {
		v.spinner.UpdateMessage(msg)
		return
	}
	v.spinner = ui.NewConnectionSpinner(msg)
	v.spinner.Start()
}

func (v *receiveView) stopSpinnerLocked() {
	if v.spinner != nil {
		v.spinner.Stop()
		v.spinner = nil
	}
}

// liveUI returns the live progress view, starting it on first use.
func (v *receiveView) liveUI() *ui.TransferUI {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.live == nil {
		v.stopSpinnerLocked()
		v.live = ui.NewTransferUI(ui.ModeReceive)
		v.live.Start()
	}
	return v.live
}

func (v *receiveView) track(p transfer.Progress) {
	v.mu.Lock()
	v.inFlight[p.Name] = p
	v.mu.Unlock()
	v.liveUI().Update(p)
}

func (v *receiveView) take(name string) (transfer.Progress, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	p, ok := v.inFlight[name]
	delete(v.inFlight, name)
	return p, ok
}

func (v *receiveView) hooks() transfer.ReceiverHooks {
	return transfer.ReceiverHooks{
		OnStart:    v.track,
		OnProgress: v.track,
		OnComplete: func(f transfer.CompletedFile) {
			p, ok := v.take(f.Name)
			if !ok {
				return
			}
			p.Transferred = f.Size
			p.Percent = transfer.Percent(f.Size, p.Size)
			v.liveUI().Complete(p)
		},
		OnError: func(name string, err error) {
			if p, ok := v.take(name); ok {
				v.liveUI().Fail(p, err)
			}
		},
	}
}

func (v *receiveView) fail(p transfer.Progress, err error) {
	v.take(p.Name)
	v.liveUI().Fail(p, err)
}

func (v *receiveView) stop() {
	v.mu.Lock()
	live := v.live
	v.live = nil
	v.stopSpinnerLocked()
	v.mu.Unlock()
	if live != nil {
		live.Stop()
	}
}

func prepareTransferOptions(zipMode bool, outputDir string) (*transfer.TransferOptions, string, func(), error) {
	opts := &transfer.TransferOptions{OutputDir: outputDir}

	var tempDir string
	var cleanup func()

	if zipMode {
		var err error
		tempDir, err = os.MkdirTemp("", "linkdrop-receive-*")
		if err != nil {
			return nil, "", nil, transfer.NewError("create temp dir", err)
		}
		opts.OutputDir = tempDir
		cleanup = func() {
			os.RemoveAll(tempDir)
		}
	}

	return opts, tempDir, cleanup, nil
}

func finalizeTransfer(zipMode bool, outputDir, tempDir string) error {
	if !zipMode {
		return nil
	}

	zipName := fmt.Sprintf("linkdrop-download-%d.zip", time.Now().UnixMilli())
	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return transfer.NewError("create output dir", err)
		}
		zipName = filepath.Join(outputDir, zipName)
	}

	fmt.Println()
	s := ui.NewWaitingSpinner("Zipping files...")
	s.Start()
	if err := utils.ZipDirectory(tempDir, zipName); err != nil {
		s.Stop()
		return transfer.NewError("zip files", err)
	}
	s.Success(fmt.Sprintf("Files zipped to %s", zipName))

	return nil
}

func init() {
	rootCmd.AddCommand(receiveCmd)

	receiveCmd.Flags().BoolVarP(&flagReceiverZip, "zip", "z", false, "Zip received files")
	receiveCmd.Flags().StringVarP(&flagReceiverDir, "dir", "d", "", "Directory to save received files")
}
