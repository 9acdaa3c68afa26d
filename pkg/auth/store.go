package auth

import "context"

// UserStore is the persisted user-record collaborator. Implementations
// return (nil, nil) when no record exists; errors are reserved for lookup
// failures.
type UserStore interface {
	FindByID(ctx context.Context, id string) (*UserRecord, error)
	FindByEmail(ctx context.Context, email string) (*UserRecord, error)
}
