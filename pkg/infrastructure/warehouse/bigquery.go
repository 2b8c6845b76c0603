package warehouse

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"
)

// BigQueryAdapter provides warehouse operations using BigQuery
type BigQueryAdapter struct {
	Client *bigquery.Client
}

func (a *BigQueryAdapter) Query(ctx context.Context, sql string) ([]map[string]interface{}, error) {
	it, err := a.Client.Query(sql).Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("bigquery query: %w", err)
	}

	var rows []map[string]interface{}
	for {
		var row map[string]bigquery.Value
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bigquery read: %w", err)
		}
		converted := make(map[string]interface{}, len(row))
		for k, v := range row {
			converted[k] = v
		}
		rows = append(rows, converted)
	}
	return rows, nil
}

// mapSaver adapts a generic row to the streaming insert API.
type mapSaver map[string]interface{}

func (m mapSaver) Save() (map[string]bigquery.Value, string, error) {
	row := make(map[string]bigquery.Value, len(m))
	for k, v := range m {
		row[k] = v
	}
	// Empty insert id: ledger rows are append-only and bronze dedup happens
	// upstream, so best-effort dedup by BigQuery is not needed.
	return row, "", nil
}

func (a *BigQueryAdapter) Insert(ctx context.Context, dataset, table string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	savers := make([]mapSaver, len(rows))
	for i, row := range rows {
		savers[i] = mapSaver(row)
	}
	ins := a.Client.Dataset(dataset).Table(table).Inserter()
	if err := ins.Put(ctx, savers); err != nil {
		return fmt.Errorf("bigquery insert %s.%s: %w", dataset, table, err)
	}
	return nil
}

// RunScript executes a multi-statement SQL script as one job. BigQuery
// runs the script transactionally when it is wrapped in
// BEGIN TRANSACTION / COMMIT TRANSACTION, which is how the silver layer
// gets its atomic delete-then-insert.
func (a *BigQueryAdapter) RunScript(ctx context.Context, sql string) error {
	job, err := a.Client.Query(sql).Run(ctx)
	if err != nil {
		return fmt.Errorf("bigquery script: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("bigquery script wait: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("bigquery script failed: %w", err)
	}
	return nil
}
