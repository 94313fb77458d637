package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/vertex-rtc/vertex/signaling-relay/internal/signaling"
)

var (
	accent = lipgloss.Color("#22d3ee")
	muted  = lipgloss.Color("#6B7280")

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Align(lipgloss.Center)

	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	rowStyle     = cellStyle.Foreground(lipgloss.Color("255"))
	rowAltStyle  = cellStyle.Foreground(lipgloss.Color("245"))
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981")).Bold(true)
)

func peerTable(peers []signaling.PeerInfo, self string) string {
	if len(peers) == 0 {
		return mutedStyle.Render("No peers registered")
	}

	rows := make([][]string, 0, len(peers))
	for i, p := range peers {
		id := p.ID
		if id == self {
			id += " (you)"
		}
		rows = append(rows, []string{fmt.Sprintf("%d", i+1), id, p.DeviceName, p.Username, p.UserAgent})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(accent)).
		Headers("#", "ID", "Device", "User", "User agent").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case row%2 == 0:
				return rowStyle
			default:
				return rowAltStyle
			}
		}).
		Render()
}

// printReplies writes one line per frame; errors are highlighted.
func printReplies(w io.Writer, replies []reply) {
	if len(replies) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("no reply"))
		return
	}
	for _, r := range replies {
		if r.Type != signaling.MessageTypeError {
			fmt.Fprintf(w, "%s %s\n", successStyle.Render(string(r.Type)), r.Raw)
			continue
		}
		var data struct {
			Reason     string `json:"reason"`
			RequestMsg string `json:"requestMsg"`
		}
		_ = json.Unmarshal(r.Data, &data)
		label := "error"
		if data.RequestMsg != "" {
			label += " (" + data.RequestMsg + ")"
		}
		fmt.Fprintf(w, "%s %s\n", errorStyle.Render(label+":"), data.Reason)
	}
}
