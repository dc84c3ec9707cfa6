package pipeline

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/codebook/internal/model"
)

// Format is a dataset file encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// FormatFor picks the encoding from the file extension. Anything that is
// not .yaml or .yml is read as JSON.
func FormatFor(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// LoadResult is a dataset read from disk together with its raw bytes,
// which key the report cache.
type LoadResult struct {
	Path    string
	Dataset *model.Dataset
	Raw     []byte
	// Problems are annotation records that could not be decoded. They
	// were dropped from Dataset.
	Problems model.ValidationErrors
}

// LoadDataset reads and decodes a dataset file. Malformed annotation
// records do not fail the load; they are reported in Problems. Syntax
// errors and a missing codebook do.
func LoadDataset(path string) (*LoadResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}

	ds, err := DecodeDataset(raw, FormatFor(path))
	res := &LoadResult{Path: path, Dataset: ds, Raw: raw}
	if err != nil {
		var problems model.ValidationErrors
		if !errors.As(err, &problems) {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		res.Problems = problems
	}
	return res, nil
}

// DecodeDataset parses data in the given format. On annotation decoding
// failures it returns the partially decoded dataset along with
// model.ValidationErrors.
func DecodeDataset(data []byte, format Format) (*model.Dataset, error) {
	ds := &model.Dataset{}
	var err error
	switch format {
	case FormatYAML:
		err = yaml.Unmarshal(data, ds)
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		err = dec.Decode(ds)
	}
	var problems model.ValidationErrors
	if err != nil && !errors.As(err, &problems) {
		return nil, err
	}
	return ds, err
}

// SaveDataset writes ds to path in the format implied by its extension.
func SaveDataset(path string, ds *model.Dataset) error {
	var (
		data []byte
		err  error
	)
	switch FormatFor(path) {
	case FormatYAML:
		data, err = yaml.Marshal(ds)
	default:
		data, err = json.MarshalIndent(ds, "", "  ")
		data = append(data, '\n')
	}
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}

	if err := writeFile(path, data); err != nil {
		return fmt.Errorf("write dataset: %w", err)
	}
	return nil
}
