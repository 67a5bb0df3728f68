// Package mongostore implements docstore.Store on MongoDB.
//
// Documents use string _id values; auto-assigned IDs are ObjectID hex
// strings. Live subscriptions are built on change streams and therefore need
// a replica set, as do batches, which run inside a transaction.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dalemusser/impacthub/internal/app/system/docstore"
	"github.com/dalemusser/impacthub/internal/app/system/txn"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// Store is a docstore.Store backed by one MongoDB database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

var _ docstore.Store = (*Store)(nil)

// New creates a Store on db. The client is needed to start transactions.
func New(client *mongo.Client, db *mongo.Database, logger *zap.Logger) *Store {
	return &Store{client: client, db: db, log: logger}
}

func (s *Store) Get(ctx context.Context, collection, id string) (docstore.Doc, error) {
	var m bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&m)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return fromBSON(m), nil
}

func (s *Store) Query(ctx context.Context, collection string, filters []docstore.Filter, order docstore.Order) ([]docstore.Doc, error) {
	opts := options.Find().SetSort(sortSpec(order))
	cur, err := s.db.Collection(collection).Find(ctx, filterSpec(filters), opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make([]docstore.Doc, 0)
	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, fromBSON(m))
	}
	return out, cur.Err()
}

func (s *Store) Write(ctx context.Context, collection, id string, data docstore.Doc) (string, error) {
	if id == "" {
		id = primitive.NewObjectID().Hex()
	}
	_, err := s.db.Collection(collection).ReplaceOne(ctx,
		bson.M{"_id": id},
		withID(data, id),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, collection, id string, fields docstore.Doc) error {
	res, err := s.db.Collection(collection).UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": withoutID(fields)},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.Collection(collection).DeleteOne(ctx, bson.M{"_id": id})
	return err
}

// Batch commits ops in one transaction. Deployments without transaction
// support get ErrAtomicUnsupported and no writes.
func (s *Store) Batch(ctx context.Context, ops []docstore.Op) error {
	for i, op := range ops {
		if op.Collection == "" || op.ID == "" {
			return fmt.Errorf("op %d (%s): %w", i, op.Kind, docstore.ErrInvalidOp)
		}
	}
	if len(ops) == 0 {
		return nil
	}

	err := txn.Run(ctx, s.client, func(sc mongo.SessionContext) error {
		for _, op := range ops {
			if err := s.applyOp(sc, op); err != nil {
				return err
			}
		}
		return nil
	})
	if mapped := batchErr(err); errors.Is(mapped, docstore.ErrAtomicUnsupported) {
		s.log.Warn("atomic batch rejected: transactions unavailable",
			zap.Int("ops", len(ops)), zap.Error(err))
		return mapped
	}
	return err
}

// batchErr turns "this deployment cannot run transactions" into
// docstore.ErrAtomicUnsupported and passes every other error through.
func batchErr(err error) error {
	if err == nil || !txn.IsNotSupported(err) {
		return err
	}
	return fmt.Errorf("%w: %v", docstore.ErrAtomicUnsupported, err)
}

func (s *Store) applyOp(ctx context.Context, op docstore.Op) error {
	c := s.db.Collection(op.Collection)
	switch op.Kind {
	case docstore.OpSet:
		_, err := c.ReplaceOne(ctx, bson.M{"_id": op.ID}, withID(op.Data, op.ID), options.Replace().SetUpsert(true))
		return err
	case docstore.OpUpdate:
		res, err := c.UpdateOne(ctx, bson.M{"_id": op.ID}, bson.M{"$set": withoutID(op.Data)})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return fmt.Errorf("update %s/%s: %w", op.Collection, op.ID, docstore.ErrNotFound)
		}
		return nil
	case docstore.OpDelete:
		_, err := c.DeleteOne(ctx, bson.M{"_id": op.ID})
		return err
	}
	return fmt.Errorf("op %s: %w", op.Kind, docstore.ErrInvalidOp)
}

/*─────────────────────────────────────────────────────────────────────────────*
| BSON conversion                                                            |
*─────────────────────────────────────────────────────────────────────────────*/

func filterSpec(filters []docstore.Filter) bson.D {
	out := bson.D{}
	for _, f := range filters {
		out = append(out, bson.E{Key: f.Field, Value: f.Value})
	}
	return out
}

func sortSpec(order docstore.Order) bson.D {
	if order.Field == "" {
		return bson.D{{Key: "_id", Value: 1}}
	}
	dir := 1
	if order.Desc {
		dir = -1
	}
	return bson.D{{Key: order.Field, Value: dir}, {Key: "_id", Value: 1}}
}

func withID(d docstore.Doc, id string) bson.M {
	out := bson.M{}
	for k, v := range d {
		out[k] = v
	}
	out["_id"] = id
	return out
}

func withoutID(d docstore.Doc) bson.M {
	out := bson.M{}
	for k, v := range d {
		if k != "_id" {
			out[k] = v
		}
	}
	return out
}

// fromBSON converts driver types into plain Go values so documents look the
// same as the in-memory store's.
func fromBSON(m bson.M) docstore.Doc {
	out := make(docstore.Doc, len(m))
	for k, v := range m {
		out[k] = normalize(v)
	}
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case bson.M:
		return map[string]any(fromBSON(t))
	case bson.D:
		return map[string]any(fromBSON(t.Map()))
	case bson.A:
		out := make([]any, len(t))
		for i := range t {
			out[i] = normalize(t[i])
		}
		return out
	case primitive.DateTime:
		return t.Time().UTC()
	case primitive.ObjectID:
		return t.Hex()
	case int32:
		return int64(t)
	}
	return v
}
