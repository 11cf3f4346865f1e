package audit

import (
	"encoding/csv"
	"io"
	"strings"
)

// ExportCSV writes entries as CSV to w, newest-first as passed in (callers
// typically pass the result of Read directly). This supplements the
// stable JSONL line contract with a flat format dashboards and spreadsheet
// tooling can consume without a JSON parser.
func ExportCSV(w io.Writer, entries []Entry) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	header := []string{
		"timestamp", "toolName", "actionType", "resource", "outcome",
		"receiptId", "taskId", "profile", "source", "riskSignals", "prevHash",
	}
	if err := cw.Write(header); err != nil {
		return err
	}

	for _, e := range entries {
		risks := e.RiskSignals.Slice()
		strs := make([]string, len(risks))
		for i, r := range risks {
			strs[i] = string(r)
		}
		row := []string{
			e.Timestamp,
			e.ToolName,
			e.ActionType,
			e.Resource,
			string(e.Outcome),
			e.ReceiptID,
			e.TaskID,
			e.Profile,
			string(e.Source),
			strings.Join(strs, ";"),
			e.PrevHash,
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
