package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BioHazard786/linkdrop/internal/transfer"
	"github.com/BioHazard786/linkdrop/internal/utils"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// TransferMode represents send or receive
type TransferMode int

const (
	ModeSend TransferMode = iota
	ModeReceive
)

// TransferUI shows live per-file progress. Files appear as their first
// progress report arrives, so the receiver needs no list up front.
type TransferUI struct {
	program    *tea.Program
	model      *transferModel
	updateChan chan progressUpdate
	done       chan struct{}
	stopOnce   sync.Once
	wg         sync.WaitGroup
}

type progressUpdate struct {
	progress  transfer.Progress
	completed bool
	failed    bool
	errMsg    string
}

// TickMsg is sent periodically to refresh speeds and ETAs.
type TickMsg time.Time

type fileRow struct {
	id        string
	name      string
	size      int64
	current   int64
	startTime time.Time
	complete  bool
	failed    bool
	errMsg    string
	bar       progress.Model
}

type transferModel struct {
	mode       TransferMode
	updateChan chan progressUpdate
	spinner    spinner.Model
	startTime  time.Time
	barWidth   int

	mu       sync.RWMutex
	state    string
	rows     []*fileRow
	index    map[string]int
	quitting bool
}

func newTransferModel(mode TransferMode, updates chan progressUpdate) *transferModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &transferModel{
		mode:       mode,
		updateChan: updates,
		spinner:    s,
		startTime:  time.Now(),
		barWidth:   25,
		state:      "Connected",
		index:      make(map[string]int),
	}
}

func NewTransferUI(mode TransferMode) *TransferUI {
	updates := make(chan progressUpdate, 100)
	return &TransferUI{
		model:      newTransferModel(mode, updates),
		updateChan: updates,
		done:       make(chan struct{}),
	}
}

// Start runs the UI inline, keeping earlier terminal output visible.
func (ui *TransferUI) Start() {
	ui.program = tea.NewProgram(ui.model)
	ui.wg.Add(1)
	go func() {
		defer ui.wg.Done()
		if _, err := ui.program.Run(); err != nil {
			PrintErrorf("UI error: %v", err)
		}
	}()
}

// Update reports progress. Intermediate updates are dropped when the UI
// falls behind; the next one catches it up.
func (ui *TransferUI) Update(p transfer.Progress) {
	select {
	case ui.updateChan <- progressUpdate{progress: p}:
	default:
	}
}

func (ui *TransferUI) Complete(p transfer.Progress) {
	ui.send(progressUpdate{progress: p, completed: true})
}

func (ui *TransferUI) Fail(p transfer.Progress, err error) {
	ui.send(progressUpdate{progress: p, failed: true, errMsg: err.Error()})
}

func (ui *TransferUI) send(u progressUpdate) {
	select {
	case ui.updateChan <- u:
	case <-ui.done:
	}
}

func (ui *TransferUI) SetState(state string) {
	ui.model.mu.Lock()
	ui.model.state = state
	ui.model.mu.Unlock()
}

func (ui *TransferUI) Stop() {
	ui.stopOnce.Do(func() {
		close(ui.done)
		if ui.program != nil {
			ui.program.Quit()
		}
		ui.wg.Wait()
	})
}

func (m *transferModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForUpdates(), tickCmd())
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

func (m *transferModel) listenForUpdates() tea.Cmd {
	return func() tea.Msg {
		return <-m.updateChan
	}
}

func (m *transferModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.mu.Lock()
			m.quitting = true
			m.mu.Unlock()
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.mu.Lock()
		m.barWidth = max(10, min(25, msg.Width-60))
		for _, r := range m.rows {
			r.bar.Width = m.barWidth
		}
		m.mu.Unlock()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case TickMsg:
		if !m.isQuitting() {
			cmds = append(cmds, tickCmd())
		}

	case progressUpdate:
		m.apply(msg)
		cmds = append(cmds, m.listenForUpdates())
	}

	return m, tea.Batch(cmds...)
}

func (m *transferModel) isQuitting() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quitting
}

func (m *transferModel) apply(u progressUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := u.progress
	i, ok := m.index[p.SessionID]
	if !ok {
		i = len(m.rows)
		m.index[p.SessionID] = i
		m.rows = append(m.rows, &fileRow{
			id:   p.SessionID,
			name: p.Name,
			size: p.Size,
			bar: progress.New(
				progress.WithGradient(ProgressStart, ProgressEnd),
				progress.WithWidth(m.barWidth),
				progress.WithoutPercentage(),
			),
		})
	}
	row := m.rows[i]

	switch {
	case u.completed:
		row.complete = true
		row.current = row.size
	case u.failed:
		row.failed = true
		row.errMsg = u.errMsg
	default:
		if row.startTime.IsZero() {
			row.startTime = time.Now()
		}
		row.current = p.Transferred
		if p.Done() {
			row.complete = true
		}
	}
}

func (m *transferModel) View() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.quitting {
		return ""
	}

	var b strings.Builder

	modeIcon, modeText := IconSend, "Sending"
	if m.mode == ModeReceive {
		modeIcon, modeText = IconReceive, "Receiving"
	}
	fmt.Fprintf(&b, "\n%s %s Files\n\n", modeIcon, modeText)
	fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), m.state)

	var total, current int64
	for _, r := range m.rows {
		total += r.size
		current += r.current
	}
	elapsed := time.Since(m.startTime).Seconds()
	var speed float64
	if elapsed > 0 {
		speed = float64(current) / elapsed
	}
	var overall float64
	if len(m.rows) > 0 {
		overall = transfer.Percent(current, total)
	}
	fmt.Fprintf(&b, "Overall: %5.1f%% (%s/%s) %s\n\n",
		overall,
		utils.FormatSize(current),
		utils.FormatSize(total),
		MutedStyle.Render(utils.FormatSpeed(speed)),
	)

	for _, r := range m.rows {
		b.WriteString(m.rowView(r))
		b.WriteString("\n")
	}

	b.WriteString("\n" + MutedStyle.Render("Press q to hide progress"))
	return b.String()
}

func (m *transferModel) rowView(r *fileRow) string {
	var (
		icon      string
		nameStyle lipgloss.Style
	)
	switch {
	case r.failed:
		icon, nameStyle = IconError, ErrorStyle
	case r.complete:
		icon, nameStyle = IconSuccess, SuccessStyle
	case r.current > 0:
		icon, nameStyle = m.spinner.View(), lipgloss.NewStyle()
	default:
		icon, nameStyle = "○", MutedStyle
	}

	var b strings.Builder
	name := utils.TruncateString(r.name, 22)
	fmt.Fprintf(&b, "  %s %s ", icon, nameStyle.Width(24).Render(name))

	percent := transfer.Percent(r.current, r.size)
	b.WriteString(r.bar.ViewAs(percent / 100))
	fmt.Fprintf(&b, " %5.1f%%", percent)

	if r.failed {
		b.WriteString(ErrorStyle.Render(" " + r.errMsg))
		return b.String()
	}

	if !r.complete && r.current > 0 && !r.startTime.IsZero() {
		elapsed := time.Since(r.startTime).Seconds()
		if elapsed > 0 {
			speed := float64(r.current) / elapsed
			b.WriteString(MutedStyle.Render(" " + utils.FormatSpeed(speed)))
			if remaining := r.size - r.current; remaining > 0 && speed > 0 {
				eta := time.Duration(float64(remaining) / speed * float64(time.Second))
				b.WriteString(MutedStyle.Render(" ETA: " + utils.FormatTimeDuration(eta)))
			}
		}
	}
	return b.String()
}
