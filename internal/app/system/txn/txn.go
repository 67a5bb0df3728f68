// Package txn wraps MongoDB multi-document transactions.
//
// Transactions need a replica set or sharded cluster. Standalone servers
// reject them with a handful of error codes and messages, which
// IsNotSupported recognizes so callers can report a clear error instead of a
// driver message.
package txn

import (
	"context"
	"errors"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"
)

// Run executes fn inside a transaction and commits it. The driver retries
// fn on transient transaction errors; fn must therefore be idempotent.
func Run(ctx context.Context, client *mongo.Client, fn func(sc mongo.SessionContext) error) error {
	sess, err := client.StartSession()
	if err != nil {
		return err
	}
	defer sess.EndSession(ctx)

	opts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.Majority())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc)
	}, opts)
	return err
}

// IsNotSupported reports whether err means the deployment cannot run
// transactions (standalone server, unsupported session state).
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}

	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case 20, // IllegalOperation: transaction numbers need a replica set
			51,  // IllegalOperation (legacy)
			263: // OperationNotSupportedInTransaction
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	has := func(s string) bool { return strings.Contains(msg, s) }

	if has("transaction") && (has("replica set") || has("session") || has("illegal operation")) {
		return true
	}
	return has("session") && has("not supported")
}
