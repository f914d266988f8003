package main

import (
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// cborReport is the machine-readable twin of the text table printed by
// printTable, for callers that want to diff two snapshots' census data
// programmatically instead of scraping columns.
type cborReport struct {
	Classes []censusRow `cbor:"classes"`
}

func writeCBORReport(path string, rows []censusRow) error {
	data, err := cbor.Marshal(cborReport{Classes: rows})
	if err != nil {
		return fmt.Errorf("encoding CBOR report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing CBOR report: %w", err)
	}
	return nil
}
