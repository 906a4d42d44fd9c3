package io

import (
	"encoding/csv"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"creditrule/pkg/model"
	"creditrule/pkg/table"
)

// Store persists tables under a location. For file stores the location is a path,
// for database stores it names a table.
type Store interface {
	Load(location string) (table.Table, error)
	Save(location string, t table.Table) error
}

// CSVStore reads and writes comma separated files with a header line. Empty
// fields are read as missing values.
type CSVStore struct {
	Comma rune
}

func NewCSVStore() *CSVStore {
	return &CSVStore{Comma: ','}
}

func (s *CSVStore) Load(path string) (table.Table, error) {
	inputFile, err := os.Open(path)
	if err != nil {
		return table.Table{}, fmt.Errorf("error opening file: %w", err)
	}
	defer inputFile.Close()
	return s.Read(inputFile)
}

// Read parses a CSV stream. The first line is the header.
func (s *CSVStore) Read(input io.Reader) (table.Table, error) {
	reader := csv.NewReader(input)
	reader.Comma = s.Comma

	header, err := reader.Read()
	if err != nil {
		return table.Table{}, fmt.Errorf("error reading data header: %w", err)
	}

	data := make(map[string][]table.Cell, len(header))
	for _, col := range header {
		data[col] = nil
	}
	line := 1
	for record, err := reader.Read(); err != io.EOF; record, err = reader.Read() {
		line++
		if err != nil {
			return table.Table{}, fmt.Errorf("error reading line %d: %w", line, err)
		}
		for i, value := range record {
			cell := table.Null()
			if value != "" {
				cell = table.Str(value)
			}
			data[header[i]] = append(data[header[i]], cell)
		}
	}
	return table.New(header, data)
}

func (s *CSVStore) Save(path string, t table.Table) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}
	outputFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating file %s: %w", path, err)
	}
	if err := s.Write(outputFile, t); err != nil {
		outputFile.Close()
		return err
	}
	return outputFile.Close()
}

func (s *CSVStore) Write(output io.Writer, t table.Table) error {
	writer := csv.NewWriter(output)
	writer.Comma = s.Comma
	if err := writer.Write(t.Columns()); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	for r := 0; r < t.Rows(); r++ {
		if err := writer.Write(t.Record(r)); err != nil {
			return fmt.Errorf("error writing row %d: %w", r, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

func SaveModel(model *model.Model, writer io.Writer) error {
	encoder := gob.NewEncoder(writer)
	err := encoder.Encode(model)
	if err != nil {
		return fmt.Errorf("error encoding model: %w", err)
	}
	return nil
}

func LoadModel(input io.Reader) (*model.Model, error) {
	decoder := gob.NewDecoder(input)
	model := model.Model{}
	err := decoder.Decode(&model)
	if err != nil {
		return nil, fmt.Errorf("error decoding model: %w", err)
	}
	return &model, nil
}

// SaveModelFile writes the model to path, creating parent directories.
func SaveModelFile(m *model.Model, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directory for %s: %w", path, err)
	}
	outputFile, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating model file %s: %w", path, err)
	}
	defer outputFile.Close()
	return SaveModel(m, outputFile)
}

func LoadModelFile(path string) (*model.Model, error) {
	modelFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening model file %s: %w", path, err)
	}
	defer modelFile.Close()
	return LoadModel(modelFile)
}
