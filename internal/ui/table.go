package ui

import (
	"fmt"
	"strconv"

	"github.com/BioHazard786/linkdrop/internal/transfer"
	"github.com/BioHazard786/linkdrop/internal/utils"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// FileTableItem represents a file in the table
type FileTableItem struct {
	Index int
	Name  string
	Size  int64
	Type  string
}

// FileTable renders the files about to be sent.
type FileTable struct {
	items    []FileTableItem
	showType bool
}

func NewFileTable(items []FileTableItem) *FileTable {
	return &FileTable{
		items:    items,
		showType: true,
	}
}

// HideType hides the file type column
func (t *FileTable) HideType() *FileTable {
	t.showType = false
	return t
}

func (t *FileTable) View() string {
	if len(t.items) == 0 {
		return MutedStyle.Render("No files")
	}

	headers := []string{"#", "Name", "Size"}
	if t.showType {
		headers = append(headers, "Type")
	}

	rows := make([][]string, 0, len(t.items))
	for _, item := range t.items {
		row := []string{
			strconv.Itoa(item.Index),
			utils.TruncateString(item.Name, 50),
			utils.FormatSize(item.Size),
		}
		if t.showType {
			row = append(row, utils.TruncateString(item.Type, 20))
		}
		rows = append(rows, row)
	}
	return styledTable(headers, rows)
}

func RenderFileTable(items []FileTableItem) {
	fmt.Println(NewFileTable(items).View())
}

// CompletedTableView lists finished files with their size in megabytes and
// where they ended up, if known.
func CompletedTableView(items []transfer.CompletedFile) string {
	if len(items) == 0 {
		return MutedStyle.Render("No files transferred")
	}

	withLocation := false
	for _, f := range items {
		if f.Location != "" {
			withLocation = true
			break
		}
	}

	headers := []string{"#", "Name", "Size"}
	if withLocation {
		headers = append(headers, "Saved to")
	}
	rows := make([][]string, 0, len(items))
	for i, f := range items {
		row := []string{
			strconv.Itoa(i + 1),
			utils.TruncateString(f.Name, 40),
			utils.FormatMegabytes(f.Size),
		}
		if withLocation {
			row = append(row, utils.TruncateString(f.Location, 50))
		}
		rows = append(rows, row)
	}
	return styledTable(headers, rows)
}

func RenderCompletedTable(items []transfer.CompletedFile) {
	fmt.Println(CompletedTableView(items))
}

func styledTable(headers []string, rows [][]string) string {
	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})
	return tbl.Render()
}

// RoomInfoView is the box a sender shows once its room exists.
func RoomInfoView(roomID, link string) string {
	content := fmt.Sprintf("%s Room Created!\n\n%s Code:  %s\n%s Link:  %s",
		IconSuccess,
		IconCopy, CodeStyle.Render(roomID),
		IconWeb, MutedStyle.Render(link),
	)
	return RoomBoxStyle.Render(content)
}

func RenderRoomInfo(roomID, link string) {
	fmt.Println(RoomInfoView(roomID, link))
}

// CountdownMessage is the waiting line shown under the room box.
func CountdownMessage(remaining int) string {
	return fmt.Sprintf("Waiting for receiver... %s", MutedStyle.Render(fmt.Sprintf("(%ds left)", remaining)))
}
