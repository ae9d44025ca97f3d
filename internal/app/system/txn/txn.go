// internal/app/system/txn/txn.go
// Package txn runs multi-document writes in a MongoDB transaction and
// recognises servers (standalone, some managed offerings) that cannot.
package txn

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotSupported is returned by Run when the deployment cannot run
// transactions. Callers fall back to ordered writes with compensation.
var ErrNotSupported = errors.New("transactions not supported")

// Server error codes that mean "no transactions here".
const (
	codeIllegalOperation          = 20
	codeNoReplicationEnabled      = 51
	codeOperationNotSupportedInTx = 263
)

// IsNotSupported reports whether err indicates the server cannot run
// transactions.
func IsNotSupported(err error) bool {
	if err == nil {
		return false
	}
	var ce mongo.CommandError
	if errors.As(err, &ce) {
		switch ce.Code {
		case codeIllegalOperation, codeNoReplicationEnabled, codeOperationNotSupportedInTx:
			return true
		}
	}

	s := strings.ToLower(err.Error())
	hasTx := strings.Contains(s, "transaction")
	hasSession := strings.Contains(s, "session")
	switch {
	case hasTx && strings.Contains(s, "replica set"):
		return true
	case hasTx && hasSession:
		return true
	case hasTx && strings.Contains(s, "illegal operation"):
		return true
	case hasSession && strings.Contains(s, "not supported"):
		return true
	}
	return false
}

// Run executes fn inside a transaction on client. Writes made through sc
// commit together or not at all. When the deployment cannot run
// transactions Run returns an error wrapping ErrNotSupported and fn's
// writes, if any, were not applied.
func Run(ctx context.Context, client *mongo.Client, fn func(sc mongo.SessionContext) error) error {
	if client == nil {
		return ErrNotSupported
	}
	sess, err := client.StartSession()
	if err != nil {
		if IsNotSupported(err) {
			return fmt.Errorf("%w: %v", ErrNotSupported, err)
		}
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil && IsNotSupported(err) {
		return fmt.Errorf("%w: %v", ErrNotSupported, err)
	}
	return err
}
