package storage

import (
	"context"
	"errors"
)

const (
	KeyToken    = "userToken"
	KeyUser     = "userData"
	KeyRefresh  = "refreshToken"
	KeyDeviceID = "deviceId"
)

var ErrNotFound = errors.New("key not found")

type Pair struct {
	Key   string
	Value string
}

// KV is the persistent key-value store the session lives in. MultiSet and
// MultiRemove are atomic: either every key is written (removed) or none is.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value string) error
	MultiSet(ctx context.Context, pairs []Pair) error
	MultiRemove(ctx context.Context, keys ...string) error
}
