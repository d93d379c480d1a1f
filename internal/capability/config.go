package capability

import (
	"context"
	"encoding/json"
	"fmt"
)

// LoadConfigAs decodes the named scalar into T. ok is false when the key is absent.
func LoadConfigAs[T any](ctx context.Context, l ConfigLoader, key string) (v T, ok bool, err error) {
	raw, ok, err := l.LoadConfig(ctx, key)
	if err != nil {
		return v, false, Wrap("load config "+key, err)
	}
	if !ok {
		return v, false, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, false, Wrap("load config "+key, fmt.Errorf("decode: %w", err))
	}
	return v, true, nil
}

// StoreConfigAs encodes v and stores it under key.
func StoreConfigAs[T any](ctx context.Context, s ConfigStorer, key string, v T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return Wrap("store config "+key, fmt.Errorf("encode: %w", err))
	}
	return Wrap("store config "+key, s.StoreConfig(ctx, key, raw))
}
