// Package idempotency remembers which commitment a client's idempotency key produced.
package idempotency

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrKeyNotFound = errors.New("key not found")

// Processing is stored under a key while the commit it guards is running.
const Processing = "processing"

type Store interface {
	Get(ctx context.Context, key string) (string, error)
	SetNX(ctx context.Context, key string, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// Record is the value kept under a key: the fingerprint of the request that
// claimed the key and either Processing or the commitment id it produced.
type Record struct {
	Result      string
	Fingerprint string
}

func (r Record) String() string {
	return r.Result + "|" + r.Fingerprint
}

// ParseRecord reads a stored value. A value without a fingerprint parses with
// an empty one.
func ParseRecord(v string) Record {
	result, fingerprint, _ := strings.Cut(v, "|")
	return Record{Result: result, Fingerprint: fingerprint}
}
