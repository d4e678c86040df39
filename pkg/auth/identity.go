package auth

import (
	"context"

	"staybook/pkg/model"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the verified caller attached to a request.
type Identity struct {
	ID       string
	Email    string
	UserType model.UserType
}

func (i *Identity) IsAdmin() bool {
	return i != nil && i.UserType == model.UserTypeAdmin
}

func (i *Identity) IsHost() bool {
	return i != nil && i.UserType == model.UserTypeHost
}

func (i *Identity) IsCustomer() bool {
	return i != nil && i.UserType == model.UserTypeCustomer
}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

func FromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	return identity, ok && identity != nil
}
