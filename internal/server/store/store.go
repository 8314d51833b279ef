// Package store persists sealed envelopes by id. Backends never see
// plaintext or keys; they hold opaque, serialized cryptox.Envelope values.
package store

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/diarykeeper/internal/cryptox"
)

// EnvelopeStore is the diary's blob storage. Get on a missing id returns
// common.ErrorNotFound. Delete of a missing id is not an error.
type EnvelopeStore interface {
	Get(ctx context.Context, id string) (*cryptox.Envelope, error)
	Put(ctx context.Context, id string, env *cryptox.Envelope) error
	Delete(ctx context.Context, id string) error
}

// Router sends ids under a prefix to a dedicated backend, e.g. media
// envelopes to object storage while entry text stays in the database.
type Router struct {
	Default  EnvelopeStore
	Prefix   string
	Prefixed EnvelopeStore
}

func (r *Router) pick(id string) EnvelopeStore {
	if r.Prefixed != nil && strings.HasPrefix(id, r.Prefix) {
		return r.Prefixed
	}
	return r.Default
}

func (r *Router) Get(ctx context.Context, id string) (*cryptox.Envelope, error) {
	return r.pick(id).Get(ctx, id)
}

func (r *Router) Put(ctx context.Context, id string, env *cryptox.Envelope) error {
	return r.pick(id).Put(ctx, id, env)
}

func (r *Router) Delete(ctx context.Context, id string) error {
	return r.pick(id).Delete(ctx, id)
}

func decode(b []byte) (*cryptox.Envelope, error) {
	env := &cryptox.Envelope{}
	if err := env.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return env, nil
}
