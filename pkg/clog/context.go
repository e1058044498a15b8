package clog

import (
	"context"
	"maps"
	"sync"
)

const (
	ErrorAttributeKey = "error.message"
	StackAttributeKey = "error.stack"
)

// bag collects attributes while a request or job is in flight so that a
// single log line at the end carries everything learned along the way.
type bag struct {
	mu    sync.RWMutex
	attrs map[string]any
}

type bagKey struct{}

func ContextWithSlog(ctx context.Context) context.Context {
	return context.WithValue(ctx, bagKey{}, &bag{attrs: make(map[string]any)})
}

func bagFrom(ctx context.Context) *bag {
	b, _ := ctx.Value(bagKey{}).(*bag)
	return b
}

func (b *bag) set(key string, value any) {
	b.mu.Lock()
	b.attrs[key] = value
	b.mu.Unlock()
}

func (b *bag) merge(src map[string]any) {
	b.mu.Lock()
	mergeInto(b.attrs, src)
	b.mu.Unlock()
}

func (b *bag) snapshot() map[string]any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return maps.Clone(b.attrs)
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		sub, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		if existing, ok := dst[k].(map[string]any); ok {
			mergeInto(existing, sub)
			continue
		}
		dst[k] = sub
	}
}

func AddAttribute(ctx context.Context, key string, value any) {
	if b := bagFrom(ctx); b != nil {
		b.set(key, value)
	}
}

func AddAttributes(ctx context.Context, attributes map[string]any) {
	if b := bagFrom(ctx); b != nil {
		b.merge(attributes)
	}
}

func GetAttribute[T any](ctx context.Context, key string) T {
	var zero T
	b := bagFrom(ctx)
	if b == nil {
		return zero
	}
	b.mu.RLock()
	v, ok := b.attrs[key].(T)
	b.mu.RUnlock()
	if !ok {
		return zero
	}
	return v
}

func GetAttributes(ctx context.Context) map[string]any {
	if b := bagFrom(ctx); b != nil {
		return b.snapshot()
	}
	return nil
}

func AddError(ctx context.Context, err error) {
	AddAttribute(ctx, ErrorAttributeKey, err)
}

func GetError(ctx context.Context) error {
	return GetAttribute[error](ctx, ErrorAttributeKey)
}

func AddStack(ctx context.Context, stack string) {
	AddAttribute(ctx, StackAttributeKey, stack)
}

func GetStack(ctx context.Context) string {
	return GetAttribute[string](ctx, StackAttributeKey)
}
