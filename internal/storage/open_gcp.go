//go:build gcp

package storage

import "context"

const gcsEnabled = true

func openGCS(ctx context.Context, loc Location) (ObjectStore, error) {
	return NewGCSStore(ctx, loc)
}
