package crud

import (
	"sync"

	"github.com/rawewhat/quera/query"
	"github.com/rawewhat/quera/store"
)

// liveBinding holds the one subscription of an Adapter and the records
// it last delivered. The subscription is set once and released once.
type liveBinding struct {
	mu          sync.RWMutex
	records     []Record
	unsubscribe store.Unsubscribe
	once        sync.Once
}

// activate subscribes to target, narrowed by filter when it is non-nil.
func (a *Adapter) activate(target string, filter query.Expression) error {
	var q store.Query = a.client.Collection(target)
	if filter != nil {
		var err error
		if q, err = where(q, filter); err != nil {
			return err
		}
	}

	onNext := func(docs []store.DocumentSnapshot) {
		records := Records(docs)
		a.binding.replace(records)
		a.logDebug("live snapshot", "collection", target, "records", len(records))
		if a.onChange != nil {
			a.onChange(records)
		}
	}
	onError := func(err error) {
		a.logError("live snapshot failed", err, "collection", target)
	}

	unsub := q.OnSnapshot(onNext, onError)
	a.binding.hold(unsub)

	args := []any{"collection", target}
	if filter != nil {
		args = append(args, "filter", filter.String())
	}
	a.logInfo("live subscription established", args...)
	return nil
}

func (b *liveBinding) replace(records []Record) {
	b.mu.Lock()
	b.records = records
	b.mu.Unlock()
}

func (b *liveBinding) hold(unsub store.Unsubscribe) {
	b.mu.Lock()
	b.unsubscribe = unsub
	b.mu.Unlock()
}

func (b *liveBinding) current() []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.records
}

func (b *liveBinding) active() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.unsubscribe != nil
}

// release calls the stored unsubscribe on first use and reports whether
// it did.
func (b *liveBinding) release() bool {
	released := false
	b.once.Do(func() {
		b.mu.Lock()
		unsub := b.unsubscribe
		b.unsubscribe = nil
		b.mu.Unlock()
		if unsub != nil {
			unsub()
			released = true
		}
	})
	return released
}
