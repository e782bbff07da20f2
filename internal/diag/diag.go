// internal/diag/diag.go

// Package diag renders the node's mesh view as terminal tables for
// periodic diagnostics.
package diag

import (
	"fmt"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/tamzrod/tdma-mesh/internal/status"
)

// RenderLinkMatrix renders row i as node i+1's view of every other node.
func RenderLinkMatrix(m [][]status.Link) (string, error) {
	header := []string{"from \\ to"}
	for j := range m {
		header = append(header, strconv.Itoa(j+1))
	}

	data := pterm.TableData{header}
	for i, row := range m {
		line := []string{strconv.Itoa(i + 1)}
		for _, l := range row {
			line = append(line, l.String())
		}
		data = append(data, line)
	}

	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

// RenderNodes renders one row per configured node.
func RenderNodes(t *status.Table) (string, error) {
	data := pterm.TableData{
		{"node", "present", "updating", "last msg", "offset", "status"},
	}
	for id := 1; id <= t.Size(); id++ {
		n := t.Node(id)
		data = append(data, []string{
			strconv.Itoa(id),
			strconv.FormatBool(n.Present),
			strconv.FormatBool(t.Updating(id)),
			formatTime(n.LastMsgTime),
			fmt.Sprintf("%.3f", n.TimeOffset),
			statusName(n.Status),
		})
	}

	return pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
}

func formatTime(ts float64) string {
	if ts == 0 {
		return "-"
	}
	return fmt.Sprintf("%.2f", ts)
}

func statusName(s uint8) string {
	switch s {
	case status.TDMAStatusNominal:
		return "nominal"
	case status.TDMAStatusBlockTx:
		return "block-tx"
	case status.TDMAStatusOutOfSync:
		return "out-of-sync"
	case status.TDMAStatusFailsafe:
		return "failsafe"
	}
	return "0x" + strconv.FormatUint(uint64(s), 16)
}
