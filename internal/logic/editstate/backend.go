package editstate

import (
	"context"
	"errors"

	"github.com/patrickwarner/embedpool/internal/db"
	"github.com/patrickwarner/embedpool/internal/page"
)

// Backend stores one payload per slot for the page session.
type Backend interface {
	Save(ctx context.Context, slot page.SlotElement, payload string) error
	// Load reports ok=false when nothing is stored.
	Load(ctx context.Context, slot page.SlotElement) (payload string, ok bool, err error)
	Clear(ctx context.Context, slot page.SlotElement) error
}

// AttributeBackend keeps the payload on the slot element itself, so it lives
// exactly as long as the document does.
type AttributeBackend struct{}

func (AttributeBackend) Save(_ context.Context, slot page.SlotElement, payload string) error {
	slot.SetAttr(page.AttrPayload, payload)
	return nil
}

func (AttributeBackend) Load(_ context.Context, slot page.SlotElement) (string, bool, error) {
	v, ok := slot.Attr(page.AttrPayload)
	return v, ok, nil
}

func (AttributeBackend) Clear(_ context.Context, slot page.SlotElement) error {
	slot.RemoveAttr(page.AttrPayload)
	return nil
}

// PayloadStore is the subset of db.RedisStore used by RedisBackend.
type PayloadStore interface {
	SavePayload(ctx context.Context, slot, payload string) error
	LoadPayload(ctx context.Context, slot string) (string, error)
	ClearPayload(ctx context.Context, slot string) error
}

var _ PayloadStore = (*db.RedisStore)(nil)

// RedisBackend keeps payloads in Redis under the page session so they
// survive a reload of the host page until their TTL runs out. A payload
// seeded on the element by the document is used when Redis has none.
type RedisBackend struct {
	Store PayloadStore
}

func (b RedisBackend) Save(ctx context.Context, slot page.SlotElement, payload string) error {
	return b.Store.SavePayload(ctx, slot.Name(), payload)
}

func (b RedisBackend) Load(ctx context.Context, slot page.SlotElement) (string, bool, error) {
	v, err := b.Store.LoadPayload(ctx, slot.Name())
	if errors.Is(err, db.ErrNoPayload) {
		v, ok := slot.Attr(page.AttrPayload)
		return v, ok, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (b RedisBackend) Clear(ctx context.Context, slot page.SlotElement) error {
	slot.RemoveAttr(page.AttrPayload)
	return b.Store.ClearPayload(ctx, slot.Name())
}
