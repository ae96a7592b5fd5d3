package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore is a Firestore-backed implementation of Client.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new FirestoreStore using the given Firestore client.
func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Collection(name string) Collection {
	ref := s.client.Collection(name)
	return &firestoreCollection{
		firestoreQuery: firestoreQuery{q: ref.Query},
		ref:            ref,
	}
}

func (s *FirestoreStore) ServerTimestamp() any { return firestore.ServerTimestamp }

type firestoreQuery struct {
	q firestore.Query
}

func (q firestoreQuery) Where(field, op string, value any) Query {
	return firestoreQuery{q: q.q.Where(field, op, value)}
}

func (q firestoreQuery) Get(ctx context.Context) ([]DocumentSnapshot, error) {
	iter := q.q.Documents(ctx)
	defer iter.Stop()

	var result []DocumentSnapshot
	for {
		snap, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, err
		}
		result = append(result, &firestoreSnapshot{id: snap.Ref.ID, snap: snap})
	}
	return result, nil
}

// OnSnapshot listens on a background goroutine. Unsubscribe cancels the
// listen stream; the goroutine stops the iterator on its way out.
func (q firestoreQuery) OnSnapshot(onNext func([]DocumentSnapshot), onError func(error)) Unsubscribe {
	ctx, cancel := context.WithCancel(context.Background())
	iter := q.q.Snapshots(ctx)

	go func() {
		defer iter.Stop()
		for {
			qs, err := iter.Next()
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				if onError != nil {
					onError(err)
				}
				return
			}
			docs, err := qs.Documents.GetAll()
			if err != nil {
				if onError != nil && ctx.Err() == nil {
					onError(err)
				}
				continue
			}
			result := make([]DocumentSnapshot, len(docs))
			for i, d := range docs {
				result[i] = &firestoreSnapshot{id: d.Ref.ID, snap: d}
			}
			if ctx.Err() != nil {
				return
			}
			onNext(result)
		}
	}()

	return Unsubscribe(cancel)
}

type firestoreCollection struct {
	firestoreQuery
	ref *firestore.CollectionRef
}

func (c *firestoreCollection) Doc(id string) DocumentRef {
	return &firestoreDoc{ref: c.ref.Doc(id)}
}

func (c *firestoreCollection) Add(ctx context.Context, data map[string]any) (DocumentRef, error) {
	ref, _, err := c.ref.Add(ctx, data)
	if err != nil {
		return nil, err
	}
	return &firestoreDoc{ref: ref}, nil
}

type firestoreDoc struct {
	ref *firestore.DocumentRef
}

func (d *firestoreDoc) ID() string { return d.ref.ID }

func (d *firestoreDoc) Get(ctx context.Context) (DocumentSnapshot, error) {
	snap, err := d.ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return &firestoreSnapshot{id: d.ref.ID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &firestoreSnapshot{id: d.ref.ID, snap: snap}, nil
}

func (d *firestoreDoc) Update(ctx context.Context, data map[string]any) error {
	updates := make([]firestore.Update, 0, len(data))
	for k, v := range data {
		updates = append(updates, firestore.Update{FieldPath: firestore.FieldPath{k}, Value: v})
	}
	_, err := d.ref.Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("update %s: %w", d.ref.Path, ErrNotFound)
	}
	return err
}

func (d *firestoreDoc) Delete(ctx context.Context) error {
	_, err := d.ref.Delete(ctx)
	return err
}

type firestoreSnapshot struct {
	id   string
	snap *firestore.DocumentSnapshot
}

func (s *firestoreSnapshot) Exists() bool { return s.snap != nil && s.snap.Exists() }
func (s *firestoreSnapshot) ID() string   { return s.id }

func (s *firestoreSnapshot) Data() map[string]any {
	if !s.Exists() {
		return nil
	}
	return s.snap.Data()
}
