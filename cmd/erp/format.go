package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/wrcelo/erpwebui/pkg/apiclient"
	"github.com/wrcelo/erpwebui/pkg/auth"
)

const maxTableColumns = 8

func filterRecords(records []apiclient.Record, query string) []apiclient.Record {
	return apiclient.FilterRecords(records, strings.TrimSpace(query))
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeTable(w io.Writer, records []apiclient.Record) error {
	cols := apiclient.Columns(records, maxTableColumns)

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}

	table := tablewriter.NewWriter(w)
	table.Header(header...)
	for _, rec := range records {
		row := make([]string, len(cols))
		for i, c := range cols {
			row[i] = apiclient.FormatValue(rec[c])
		}
		if err := table.Append(row); err != nil {
			return err
		}
	}
	return table.Render()
}

func writeRecord(w io.Writer, rec apiclient.Record) {
	keys := rec.Keys()
	width := 0
	for _, k := range keys {
		width = max(width, len(k))
	}
	for _, k := range keys {
		fmt.Fprintf(w, "%-*s  %s\n", width+1, k+":", apiclient.FormatValue(rec[k]))
	}
}

func writeIdentity(w io.Writer, id *auth.Identity) {
	fmt.Fprintf(w, "Name:     %s\n", id.Label())
	if id.Email != "" {
		fmt.Fprintf(w, "Email:    %s\n", id.Email)
	}
	if id.Subject != "" {
		fmt.Fprintf(w, "Subject:  %s\n", id.Subject)
	}
	if len(id.Groups) > 0 {
		fmt.Fprintf(w, "Groups:   %s\n", strings.Join(id.Groups, ", "))
	}
	verified := "no (decoded locally)"
	if id.Verified {
		verified = "yes"
	}
	fmt.Fprintf(w, "Verified: %s\n", verified)
}

// readRecord parses the JSON object given inline or in a file. "-" reads
// from stdin.
func readRecord(stdin io.Reader, data, file string) (apiclient.Record, error) {
	var raw []byte
	switch {
	case data != "":
		raw = []byte(data)
	case file == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		raw = b
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading record file: %w", err)
		}
		raw = b
	default:
		return nil, fmt.Errorf("a record is required: use --data or --file")
	}

	var rec apiclient.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("record must be a JSON object: %w", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("record must be a JSON object")
	}
	return rec, nil
}
