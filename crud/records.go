package crud

import (
	"maps"

	"github.com/rawewhat/quera/store"
)

// Record is a document's fields plus "id" and "key", both set to the
// store-assigned document ID.
type Record map[string]any

func newRecord(snap store.DocumentSnapshot) Record {
	r := make(Record, len(snap.Data())+2)
	maps.Copy(r, snap.Data())
	r["id"] = snap.ID()
	r["key"] = snap.ID()
	return r
}

// MapSnapshot converts docs into records, in order, and hands the full
// slice to then.
func MapSnapshot[R any](docs []store.DocumentSnapshot, then func([]Record) R) R {
	records := make([]Record, 0, len(docs))
	for _, d := range docs {
		records = append(records, newRecord(d))
	}
	return then(records)
}

// Records converts docs into records, in order.
func Records(docs []store.DocumentSnapshot) []Record {
	return MapSnapshot(docs, func(r []Record) []Record { return r })
}
