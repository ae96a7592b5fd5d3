package crud

import (
	"context"
	"maps"

	"github.com/rawewhat/quera/query"
	"github.com/rawewhat/quera/response"
)

// Create adds data to the target collection, stamped with the store's
// server time under TimestampField, and answers with the stored record.
// data itself is not modified.
func (a *Adapter) Create(ctx context.Context, data map[string]any, opts ...CallOption) response.Envelope {
	target := a.resolve(opts)
	return a.attempt(ctx, "create", target, func(ctx context.Context) (response.Envelope, error) {
		if data == nil {
			return response.Envelope{}, ErrNoData
		}
		if target == "" {
			return response.Envelope{}, ErrNoTarget
		}

		payload := maps.Clone(data)
		payload[TimestampField] = a.client.ServerTimestamp()

		ref, err := a.client.Collection(target).Add(ctx, payload)
		if err != nil {
			return response.Envelope{}, err
		}
		created, err := ref.Get(ctx)
		if err != nil {
			return response.Envelope{}, err
		}
		if !created.Exists() {
			return response.Build(nil, response.CodeNotFound), nil
		}
		return response.Build(newRecord(created), response.CodeOK), nil
	})
}

// Read answers according to selector:
//
//   - "?field op value": the matching records of the target collection
//   - any other non-empty string: the record with that document ID
//   - "": every record of the target collection
func (a *Adapter) Read(ctx context.Context, selector string, opts ...CallOption) response.Envelope {
	target := a.resolve(opts)
	return a.attempt(ctx, "read", target, func(ctx context.Context) (response.Envelope, error) {
		if target == "" {
			return response.Envelope{}, ErrNoTarget
		}
		col := a.client.Collection(target)

		switch {
		case query.IsFilter(selector):
			expr, err := query.Parse(selector)
			if err != nil {
				return response.Envelope{}, err
			}
			q, err := where(col, expr)
			if err != nil {
				return response.Envelope{}, err
			}
			docs, err := q.Get(ctx)
			if err != nil {
				return response.Envelope{}, err
			}
			return MapSnapshot(docs, okRecords), nil

		case selector != "":
			snap, err := col.Doc(selector).Get(ctx)
			if err != nil {
				return response.Envelope{}, err
			}
			if !snap.Exists() {
				return response.Build(nil, response.CodeNotFound), nil
			}
			return response.Build(newRecord(snap), response.CodeOK), nil

		default:
			docs, err := col.Get(ctx)
			if err != nil {
				return response.Envelope{}, err
			}
			return MapSnapshot(docs, okRecords), nil
		}
	})
}

// Update merges data into document id and answers with the updated record.
func (a *Adapter) Update(ctx context.Context, id string, data map[string]any, opts ...CallOption) response.Envelope {
	target := a.resolve(opts)
	return a.attempt(ctx, "update", target, func(ctx context.Context) (response.Envelope, error) {
		if id == "" {
			return response.Envelope{}, ErrNoID
		}
		if data == nil {
			return response.Envelope{}, ErrNoData
		}
		if target == "" {
			return response.Envelope{}, ErrNoTarget
		}

		ref := a.client.Collection(target).Doc(id)
		if err := ref.Update(ctx, data); err != nil {
			return response.Envelope{}, err
		}
		updated, err := ref.Get(ctx)
		if err != nil {
			return response.Envelope{}, err
		}
		if !updated.Exists() {
			return response.Build(nil, response.CodeNotFound), nil
		}
		return response.Build(newRecord(updated), response.CodeOK), nil
	})
}

// Delete removes document id and reads it back. A document that still
// exists afterwards answers 404 carrying its remaining data.
//
// TODO: confirm with product whether a surviving document should be 404
// or a distinct conflict code; 404 matches the existing clients.
func (a *Adapter) Delete(ctx context.Context, id string, opts ...CallOption) response.Envelope {
	target := a.resolve(opts)
	return a.attempt(ctx, "delete", target, func(ctx context.Context) (response.Envelope, error) {
		if id == "" {
			return response.Envelope{}, ErrNoID
		}
		if target == "" {
			return response.Envelope{}, ErrNoTarget
		}

		ref := a.client.Collection(target).Doc(id)
		if err := ref.Delete(ctx); err != nil {
			return response.Envelope{}, err
		}
		deleted, err := ref.Get(ctx)
		if err != nil {
			return response.Envelope{}, err
		}
		if deleted.Exists() {
			return response.Build(deleted.Data(), response.CodeNotFound), nil
		}
		return response.Build(nil, response.CodeOK), nil
	})
}

func okRecords(records []Record) response.Envelope {
	return response.Build(records, response.CodeOK)
}
