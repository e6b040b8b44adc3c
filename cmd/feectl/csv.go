package main

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

var memberColumns = []string{"member_id", "memberid", "id"}

// readMemberIDs reads member ids from a CSV with a member id column, or one id
// per line when no header names one. Blank ids are skipped.
func readMemberIDs(r io.Reader) ([]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read members csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("members csv is empty")
	}

	column := 0
	start := 0
	for i, name := range rows[0] {
		if containsFold(memberColumns, strings.TrimSpace(name)) {
			column, start = i, 1
			break
		}
	}

	ids := make([]string, 0, len(rows)-start)
	for _, row := range rows[start:] {
		if column >= len(row) {
			continue
		}
		if id := strings.TrimSpace(row[column]); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New("members csv has no member ids")
	}
	return ids, nil
}

func containsFold(list []string, value string) bool {
	for _, item := range list {
		if strings.EqualFold(item, value) {
			return true
		}
	}
	return false
}
