package docstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Memory is an in-process Store. Every write computes the new emission for
// each affected subscription while holding the store lock, so subscribers
// observe states in commit order.
type Memory struct {
	mu     sync.Mutex
	colls  map[string]map[string]Doc
	docs   map[*docSub]struct{}
	quers  map[*querySub]struct{}
	faults func(Op) error
}

type docSub struct {
	collection string
	id         string
	onChange   func(Doc)
	onError    func(error)
	d          *Dispatcher
}

type querySub struct {
	collection string
	filters    []Filter
	order      Order
	onChange   func([]Doc)
	onError    func(error)
	d          *Dispatcher
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{
		colls: make(map[string]map[string]Doc),
		docs:  make(map[*docSub]struct{}),
		quers: make(map[*querySub]struct{}),
	}
}

// InjectFault installs a hook consulted for every write op (including each
// op of a batch, before anything is committed). A non-nil error from the
// hook fails the write. Pass nil to clear.
func (m *Memory) InjectFault(fn func(Op) error) {
	m.mu.Lock()
	m.faults = fn
	m.mu.Unlock()
}

// BreakSubscriptions fails every live subscription on collection with err and
// retires them, the way a backend cancels listeners it no longer authorizes.
func (m *Memory) BreakSubscriptions(collection string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.docs {
		if s.collection == collection {
			s := s
			s.d.Push(func() { s.onError(err) })
			delete(m.docs, s)
		}
	}
	for s := range m.quers {
		if s.collection == collection {
			s := s
			s.d.Push(func() { s.onError(err) })
			delete(m.quers, s)
		}
	}
}

// Subscriptions reports the number of live subscriptions.
func (m *Memory) Subscriptions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs) + len(m.quers)
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.colls[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return Clone(d), nil
}

func (m *Memory) Query(ctx context.Context, collection string, filters []Filter, order Order) ([]Doc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryLocked(collection, filters, order), nil
}

func (m *Memory) Write(ctx context.Context, collection, id string, data Doc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if id == "" {
		id = uuid.NewString()
	}
	op := Op{Kind: OpSet, Collection: collection, ID: id, Data: data}
	if err := m.apply(op); err != nil {
		return "", err
	}
	return id, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Doc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.apply(Op{Kind: OpUpdate, Collection: collection, ID: id, Data: fields})
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.apply(Op{Kind: OpDelete, Collection: collection, ID: id})
}

func (m *Memory) Batch(ctx context.Context, ops []Op) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.apply(ops...)
}

// apply validates every op against a staged copy of the affected
// collections and commits only when all of them succeed.
func (m *Memory) apply(ops ...Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	staged := make(map[string]map[string]Doc)
	stage := func(coll string) map[string]Doc {
		if c, ok := staged[coll]; ok {
			return c
		}
		c := make(map[string]Doc, len(m.colls[coll]))
		for k, v := range m.colls[coll] {
			c[k] = v
		}
		staged[coll] = c
		return c
	}

	for i, op := range ops {
		if op.Collection == "" || op.ID == "" {
			return fmt.Errorf("op %d (%s): %w", i, op.Kind, ErrInvalidOp)
		}
		if m.faults != nil {
			if err := m.faults(op); err != nil {
				return err
			}
		}
		c := stage(op.Collection)
		switch op.Kind {
		case OpSet:
			d := Clone(op.Data)
			if d == nil {
				d = Doc{}
			}
			d["_id"] = op.ID
			c[op.ID] = d
		case OpUpdate:
			cur, ok := c[op.ID]
			if !ok {
				return fmt.Errorf("update %s/%s: %w", op.Collection, op.ID, ErrNotFound)
			}
			d := Clone(cur)
			for k, v := range op.Data {
				if k == "_id" {
					continue
				}
				d[k] = cloneValue(v)
			}
			c[op.ID] = d
		case OpDelete:
			delete(c, op.ID)
		default:
			return fmt.Errorf("op %d (%s): %w", i, op.Kind, ErrInvalidOp)
		}
	}

	for coll, c := range staged {
		m.colls[coll] = c
	}
	m.notifyLocked(staged)
	return nil
}

func (m *Memory) notifyLocked(changed map[string]map[string]Doc) {
	for s := range m.docs {
		if _, ok := changed[s.collection]; !ok {
			continue
		}
		s := s
		d := Clone(m.colls[s.collection][s.id])
		s.d.Push(func() { s.onChange(d) })
	}
	for s := range m.quers {
		if _, ok := changed[s.collection]; !ok {
			continue
		}
		s := s
		docs := m.queryLocked(s.collection, s.filters, s.order)
		s.d.Push(func() { s.onChange(docs) })
	}
}

func (m *Memory) queryLocked(collection string, filters []Filter, order Order) []Doc {
	out := make([]Doc, 0)
	for _, d := range m.colls[collection] {
		if Matches(d, filters) {
			out = append(out, Clone(d))
		}
	}
	SortDocs(out, order)
	return out
}

func (m *Memory) SubscribeDocument(collection, id string, onChange func(Doc), onError func(error)) Unsubscribe {
	s := &docSub{collection: collection, id: id, onChange: onChange, onError: onError, d: NewDispatcher()}

	m.mu.Lock()
	m.docs[s] = struct{}{}
	d := Clone(m.colls[collection][id])
	s.d.Push(func() { s.onChange(d) })
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.docs, s)
			m.mu.Unlock()
			s.d.Stop()
		})
	}
}

func (m *Memory) SubscribeQuery(collection string, filters []Filter, order Order, onChange func([]Doc), onError func(error)) Unsubscribe {
	s := &querySub{
		collection: collection,
		filters:    append([]Filter(nil), filters...),
		order:      order,
		onChange:   onChange,
		onError:    onError,
		d:          NewDispatcher(),
	}

	m.mu.Lock()
	m.quers[s] = struct{}{}
	docs := m.queryLocked(collection, s.filters, order)
	s.d.Push(func() { s.onChange(docs) })
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.quers, s)
			m.mu.Unlock()
			s.d.Stop()
		})
	}
}
