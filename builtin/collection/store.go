package collection

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
)

// Create stores a new document and returns it with its id.
func (c *Collection) Create(ctx context.Context, doc Document) (Document, error) {
	if err := c.Validate(doc, false); err != nil {
		return nil, err
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generating id: %w", err)
	}
	doc["id"] = id.String()

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	ts := now()
	_, err = c.DB().ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %q (id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`, c.table),
		id.String(), string(data), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", c.table, err)
	}
	return doc, nil
}

// Get returns the document with id.
func (c *Collection) Get(ctx context.Context, id string) (Document, error) {
	var data string
	err := c.DB().QueryRowContext(ctx,
		fmt.Sprintf(`SELECT data FROM %q WHERE id = ?`, c.table), id,
	).Scan(&data)
	if err != nil {
		return nil, scanErr(err, id)
	}
	return decode(data)
}

// List returns every document in creation order.
func (c *Collection) List(ctx context.Context) ([]Document, error) {
	rows, err := c.DB().QueryContext(ctx,
		fmt.Sprintf(`SELECT data FROM %q ORDER BY created_at, id`, c.table),
	)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", c.table, err)
	}
	defer rows.Close()

	docs := []Document{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		doc, err := decode(data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// Update merges changes into the document with id.
func (c *Collection) Update(ctx context.Context, id string, changes Document) (Document, error) {
	doc, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(changes, true); err != nil {
		return nil, err
	}
	for k, v := range changes {
		if k == "id" {
			continue
		}
		doc[k] = v
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encoding document: %w", err)
	}
	_, err = c.DB().ExecContext(ctx,
		fmt.Sprintf(`UPDATE %q SET data = ?, updated_at = ? WHERE id = ?`, c.table),
		string(data), now(), id,
	)
	if err != nil {
		return nil, fmt.Errorf("updating %s: %w", c.table, err)
	}
	return doc, nil
}

// Delete removes the document with id.
func (c *Collection) Delete(ctx context.Context, id string) error {
	res, err := c.DB().ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM %q WHERE id = ?`, c.table), id,
	)
	if err != nil {
		return fmt.Errorf("deleting from %s: %w", c.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrDocumentNotFound, id)
	}
	return nil
}

func decode(data string) (Document, error) {
	var doc Document
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}
	return doc, nil
}
