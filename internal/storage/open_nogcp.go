//go:build !gcp

package storage

import (
	"context"
	"fmt"
)

const gcsEnabled = false

func openGCS(_ context.Context, loc Location) (ObjectStore, error) {
	return nil, fmt.Errorf("gs://%s: GCS storage is not enabled in this build (use -tags gcp)", loc.Bucket)
}
