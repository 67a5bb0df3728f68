package mongostore

import (
	"context"
	"errors"
	"sync"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// SubscribeDocument watches one document by _id.
func (s *Store) SubscribeDocument(collection, id string, onChange func(docstore.Doc), onError func(error)) docstore.Unsubscribe {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "documentKey._id", Value: id}}}},
	}
	emit := func(ctx context.Context) error {
		d, err := s.Get(ctx, collection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			d, err = nil, nil
		}
		if err != nil {
			return err
		}
		if ctx.Err() == nil {
			onChange(d)
		}
		return nil
	}
	return s.start(collection, pipeline, emit, onError)
}

// SubscribeQuery re-runs the query on every relevant change and emits the
// full ordered result. The first filter is treated as a partition key (for
// example user_id) and pre-filters change events; it must be a field that
// does not change after insert. Deletes always trigger a re-query because
// their events carry no document.
func (s *Store) SubscribeQuery(collection string, filters []docstore.Filter, order docstore.Order, onChange func([]docstore.Doc), onError func(error)) docstore.Unsubscribe {
	filters = append([]docstore.Filter(nil), filters...)

	var pipeline mongo.Pipeline
	if len(filters) > 0 {
		pipeline = mongo.Pipeline{
			{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
				bson.D{{Key: "operationType", Value: "delete"}},
				bson.D{{Key: "fullDocument." + filters[0].Field, Value: filters[0].Value}},
			}}}}},
		}
	}
	emit := func(ctx context.Context) error {
		docs, err := s.Query(ctx, collection, filters, order)
		if err != nil {
			return err
		}
		if ctx.Err() == nil {
			onChange(docs)
		}
		return nil
	}
	return s.start(collection, pipeline, emit, onError)
}

// start opens the change stream before the initial read so no change that
// lands between the two is lost.
func (s *Store) start(collection string, pipeline mongo.Pipeline, emit func(context.Context) error, onError func(error)) docstore.Unsubscribe {
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		fail := func(err error) {
			if ctx.Err() != nil {
				return
			}
			s.log.Warn("live subscription failed",
				zap.String("collection", collection), zap.Error(err))
			onError(err)
		}

		if pipeline == nil {
			pipeline = mongo.Pipeline{}
		}
		opts := options.ChangeStream().SetFullDocument(options.UpdateLookup)
		cs, err := s.db.Collection(collection).Watch(ctx, pipeline, opts)
		if err != nil {
			fail(err)
			return
		}
		defer cs.Close(context.Background())

		if err := emit(ctx); err != nil {
			fail(err)
			return
		}
		for cs.Next(ctx) {
			if err := emit(ctx); err != nil {
				fail(err)
				return
			}
		}
		if err := cs.Err(); err != nil {
			fail(err)
		}
	}()

	var once sync.Once
	return func() { once.Do(cancel) }
}
