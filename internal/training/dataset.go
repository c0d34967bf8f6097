package training

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

const (
	DialogueColumn = "dialogue"
	SummaryColumn  = "summary"
)

var ErrMissingColumn = errors.New("dataset is missing a required column")

type Record struct {
	Dialogue string
	Summary  string
}

type Datasets struct {
	Train      []Record
	Validation []Record
	Test       []Record
}

func LoadDatasets(trainPath, validationPath, testPath string) (*Datasets, error) {
	var (
		ds  Datasets
		err error
	)
	if ds.Train, err = LoadCSVFile(trainPath); err != nil {
		return nil, err
	}
	if ds.Validation, err = LoadCSVFile(validationPath); err != nil {
		return nil, err
	}
	if ds.Test, err = LoadCSVFile(testPath); err != nil {
		return nil, err
	}
	return &ds, nil
}

func LoadCSVFile(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()

	records, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

// LoadCSV reads dialogue/summary pairs. Other columns are ignored and
// missing cells read as empty strings.
func LoadCSV(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty file", ErrMissingColumn)
		}
		return nil, err
	}

	dialogueIdx, summaryIdx := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\uFEFF"))) {
		case DialogueColumn:
			dialogueIdx = i
		case SummaryColumn:
			summaryIdx = i
		}
	}
	if dialogueIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, DialogueColumn)
	}
	if summaryIdx < 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumn, SummaryColumn)
	}

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		records = append(records, Record{
			Dialogue: cell(row, dialogueIdx),
			Summary:  cell(row, summaryIdx),
		})
	}
	return records, nil
}

func cell(row []string, idx int) string {
	if idx >= len(row) {
		return ""
	}
	return row[idx]
}
