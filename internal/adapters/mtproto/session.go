package mtproto

import (
	"context"

	"github.com/gotd/td/session"

	"newsroom/internal/domain"
)

// DBSession хранит сессию MTProto в базе под заданным именем.
type DBSession struct {
	store domain.SessionStore
	name  string
}

var _ session.Storage = (*DBSession)(nil)

// NewDBSession создаёт хранилище сессии.
func NewDBSession(store domain.SessionStore, name string) *DBSession {
	if name == "" {
		name = "default"
	}
	return &DBSession{store: store, name: name}
}

// LoadSession реализует session.Storage.
func (s *DBSession) LoadSession(ctx context.Context) ([]byte, error) {
	return s.store.LoadMTProtoSession(ctx, s.name)
}

// StoreSession реализует session.Storage.
func (s *DBSession) StoreSession(ctx context.Context, data []byte) error {
	return s.store.StoreMTProtoSession(ctx, s.name, data)
}
