package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// QueryRequest is a client-supplied SQL statement with positional parameters.
// The parameter count is not checked against the placeholders.
type QueryRequest struct {
	SQL    string        `json:"query"`
	Params []interface{} `json:"params"`
	Caller string        `json:"-"`
}

// SafetyVerdict is the outcome of classifying a statement
type SafetyVerdict struct {
	Allowed bool     `json:"allowed"`
	Reason  string   `json:"reason"`
	Tables  []string `json:"tables,omitempty"`
}

// Row is a single result row that keeps the column order of the statement
type Row struct {
	Columns []string
	Values  []interface{}
}

// Get returns the value of the named column
func (r Row) Get(column string) (interface{}, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// MarshalJSON writes the row as an object whose keys follow column order
func (r Row) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, column := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(column)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')

		value, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// QueryResult is either a row set or a mutation summary
type QueryResult struct {
	Query        string
	Params       []interface{}
	Rows         []Row
	Mutation     bool
	AffectedRows int64
	LastInsertID *int64
}

type rowSetJSON struct {
	Query   string        `json:"query,omitempty"`
	Params  []interface{} `json:"params"`
	Results []Row         `json:"results"`
	Count   int           `json:"count"`
}

type mutationJSON struct {
	Query        string        `json:"query,omitempty"`
	Params       []interface{} `json:"params"`
	AffectedRows int64         `json:"affected_rows"`
	LastInsertID *int64        `json:"last_insert_id,omitempty"`
	Message      string        `json:"message"`
}

// MarshalJSON renders a row set as {results, count} and a mutation as {affected_rows, last_insert_id}
func (r QueryResult) MarshalJSON() ([]byte, error) {
	params := r.Params
	if params == nil {
		params = []interface{}{}
	}
	if r.Mutation {
		return json.Marshal(mutationJSON{
			Query:        r.Query,
			Params:       params,
			AffectedRows: r.AffectedRows,
			LastInsertID: r.LastInsertID,
			Message:      fmt.Sprintf("Query executed successfully. %d rows affected.", r.AffectedRows),
		})
	}
	rows := r.Rows
	if rows == nil {
		rows = []Row{}
	}
	return json.Marshal(rowSetJSON{
		Query:   r.Query,
		Params:  params,
		Results: rows,
		Count:   len(rows),
	})
}

// Count returns the number of rows, or the affected row count for mutations
func (r *QueryResult) Count() int {
	if r.Mutation {
		return int(r.AffectedRows)
	}
	return len(r.Rows)
}

// Column collects the values of one column across all rows
func (r *QueryResult) Column(name string) []interface{} {
	values := make([]interface{}, 0, len(r.Rows))
	for _, row := range r.Rows {
		if v, ok := row.Get(name); ok {
			values = append(values, v)
		}
	}
	return values
}

// Strings collects one column as strings, skipping NULLs and non-text values
func (r *QueryResult) Strings(name string) []string {
	values := make([]string, 0, len(r.Rows))
	for _, v := range r.Column(name) {
		if s, ok := v.(string); ok {
			values = append(values, s)
		}
	}
	return values
}
