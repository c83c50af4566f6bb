package port

import "context"

type IdempotencyStore interface {
	// Claim sets the key, returns false if it already exists
	Claim(ctx context.Context, key string) (bool, error)

	// Release frees a key so a failed request can be retried
	Release(ctx context.Context, key string) error
}
