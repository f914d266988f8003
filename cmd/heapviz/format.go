package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

func printTable(w io.Writer, rows []censusRow) {
	fmt.Fprintf(w, "%-30s %10s %14s\n", "class", "instances", "bytes")
	var totalCount int
	var totalBytes uint64
	for _, r := range rows {
		fmt.Fprintf(w, "%-30s %10d %14d\n", r.ClassName, r.Count, r.Bytes)
		totalCount += r.Count
		totalBytes += r.Bytes
	}
	fmt.Fprintf(w, "%-30s %10d %14d\n", "Total", totalCount, totalBytes)
}

func writeEdgeCSV(path string, edges []edge) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writing edge CSV: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write([]string{"from", "to"}); err != nil {
		return err
	}
	for _, e := range edges {
		if err := cw.Write([]string{e.From, e.To}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
