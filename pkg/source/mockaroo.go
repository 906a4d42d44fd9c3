// Package source generates synthetic credit applications through the Mockaroo API.
package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cast"

	"creditrule/pkg/table"
)

// ErrNoData is returned when the generator produced no rows, either because the
// request failed or because the response was empty.
var ErrNoData = errors.New("no data generated")

// Schema is a list of Mockaroo field definitions. Only "name" is interpreted here,
// the rest is passed through to the API.
type Schema []map[string]interface{}

// LoadSchema reads a JSON field list from path.
func LoadSchema(path string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading schema %s: %w", path, err)
	}
	var schema Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("error parsing schema %s: %w", path, err)
	}
	return schema, nil
}

// Columns returns the field names in schema order.
func (s Schema) Columns() ([]string, error) {
	columns := make([]string, 0, len(s))
	for i, field := range s {
		name := cast.ToString(field["name"])
		if name == "" {
			return nil, fmt.Errorf("schema field %d has no name", i)
		}
		columns = append(columns, name)
	}
	return columns, nil
}

type Mockaroo struct {
	url  string
	key  string
	rest *resty.Client
}

// NewMockaroo creates a client. retries is the number of extra attempts after a
// failed request; 0 disables retrying.
func NewMockaroo(url, key string, timeout time.Duration, retries int) *Mockaroo {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second)
	}
	if retries > 0 {
		r.SetRetryCount(retries)
	}
	return &Mockaroo{url: url, key: key, rest: r}
}

// Generate requests count rows following schema and returns them as a text table.
func (m *Mockaroo) Generate(ctx context.Context, schema Schema, count int) (table.Table, error) {
	columns, err := schema.Columns()
	if err != nil {
		return table.Table{}, err
	}

	resp, err := m.rest.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":   m.key,
			"count": strconv.Itoa(count),
		}).
		SetHeader("Content-Type", "application/json").
		SetBody(schema).
		Post(m.url)
	if err != nil {
		return table.Table{}, fmt.Errorf("%w: request failed: %v", ErrNoData, err)
	}
	if !resp.IsSuccess() {
		log.Error().Int("Status", resp.StatusCode()).Str("Reason", resp.String()).Msg("data generation request failed")
		return table.Table{}, fmt.Errorf("%w: status %d, body: %s", ErrNoData, resp.StatusCode(), resp.String())
	}

	records, err := decodeRecords(resp.Body())
	if err != nil {
		return table.Table{}, err
	}
	if len(records) == 0 {
		return table.Table{}, ErrNoData
	}
	return toTable(columns, records)
}

// decodeRecords accepts a JSON array of objects, or a single object, which is what
// the API answers for count=1.
func decodeRecords(body []byte) ([]map[string]interface{}, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '{' {
		var record map[string]interface{}
		if err := json.Unmarshal(body, &record); err != nil {
			return nil, fmt.Errorf("error decoding response: %w", err)
		}
		return []map[string]interface{}{record}, nil
	}
	var records []map[string]interface{}
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("error decoding response: %w", err)
	}
	return records, nil
}

func toTable(columns []string, records []map[string]interface{}) (table.Table, error) {
	data := make(map[string][]table.Cell, len(columns))
	for _, col := range columns {
		values := make([]table.Cell, len(records))
		for i, record := range records {
			if v, ok := record[col]; ok && v != nil {
				values[i] = table.Str(cast.ToString(v))
			}
		}
		data[col] = values
	}
	return table.New(columns, data)
}
