package storage

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
)

// DeviceID returns the id this installation identifies itself with, creating
// and persisting a new one on first use.
func DeviceID(ctx context.Context, kv KV) (string, error) {
	const op = "storage.DeviceID"

	id, err := kv.Get(ctx, KeyDeviceID)
	if err == nil && id != "" {
		return id, nil
	}
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id = uuid.NewString()
	if err := kv.Set(ctx, KeyDeviceID, id); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return id, nil
}
