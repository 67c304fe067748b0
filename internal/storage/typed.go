package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// TypedPreferences implements Preferences on top of a raw KeyValue store.
// Values are stored JSON-encoded so types survive the round trip.
type TypedPreferences struct {
	kv KeyValue
}

var _ Preferences = (*TypedPreferences)(nil)

// NewTypedPreferences wraps a KeyValue store
func NewTypedPreferences(kv KeyValue) *TypedPreferences {
	return &TypedPreferences{kv: kv}
}

func (p *TypedPreferences) get(ctx context.Context, key string, target any) error {
	raw, err := p.kv.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return fmt.Errorf("failed to decode preference %q: %w", key, err)
	}
	return nil
}

func (p *TypedPreferences) set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode preference %q: %w", key, err)
	}
	return p.kv.Set(ctx, key, string(raw))
}

func (p *TypedPreferences) GetString(ctx context.Context, key string) (string, error) {
	var v string
	err := p.get(ctx, key, &v)
	return v, err
}

func (p *TypedPreferences) SetString(ctx context.Context, key, value string) error {
	return p.set(ctx, key, value)
}

func (p *TypedPreferences) GetInt(ctx context.Context, key string) (int, error) {
	var v int
	err := p.get(ctx, key, &v)
	return v, err
}

func (p *TypedPreferences) SetInt(ctx context.Context, key string, value int) error {
	return p.set(ctx, key, value)
}

func (p *TypedPreferences) GetBool(ctx context.Context, key string) (bool, error) {
	var v bool
	err := p.get(ctx, key, &v)
	return v, err
}

func (p *TypedPreferences) SetBool(ctx context.Context, key string, value bool) error {
	return p.set(ctx, key, value)
}

func (p *TypedPreferences) GetStringList(ctx context.Context, key string) ([]string, error) {
	var v []string
	err := p.get(ctx, key, &v)
	return v, err
}

func (p *TypedPreferences) SetStringList(ctx context.Context, key string, value []string) error {
	if value == nil {
		value = []string{}
	}
	return p.set(ctx, key, value)
}

func (p *TypedPreferences) Remove(ctx context.Context, key string) error {
	return p.kv.Remove(ctx, key)
}

func (p *TypedPreferences) Close() error {
	return p.kv.Close()
}
