package pipeline

import (
	"time"

	"github.com/SaferPlaces2023/dpc-retriever/internal/domain"
	"github.com/SaferPlaces2023/dpc-retriever/internal/storage"
)

// Request is one retrieve-process-store invocation for a single timestamp.
type Request struct {
	Product string
	// DateTime is floored to the product cadence; zero means the latest
	// published timestamp.
	DateTime        time.Time
	BBox            *domain.BBox
	TargetCRS       string
	OutFormat       string
	OutputDir       string
	Bucket          string
	RegisterCatalog bool
	MaxRetry        int
	RetryDelay      time.Duration
}

// Validate checks the request and resolves its product. Failures wrap
// domain.ErrInvalidArgument.
func (r Request) Validate() (domain.Product, error) {
	p, ok := domain.LookupProduct(r.Product)
	if !ok {
		return domain.Product{}, domain.Invalid("unknown product %q", r.Product)
	}
	if r.BBox != nil {
		if err := r.BBox.Validate(); err != nil {
			return domain.Product{}, err
		}
	}
	if r.MaxRetry < 0 {
		return domain.Product{}, domain.Invalid("max_retry must not be negative, got %d", r.MaxRetry)
	}
	if r.RetryDelay < 0 {
		return domain.Product{}, domain.Invalid("retry_delay must not be negative, got %s", r.RetryDelay)
	}
	if err := validateBucket(r.Bucket); err != nil {
		return domain.Product{}, err
	}
	if r.RegisterCatalog && r.Bucket == "" {
		return domain.Product{}, domain.Invalid("catalog registration requires a bucket")
	}
	return p, nil
}

func validateBucket(uri string) error {
	if uri == "" {
		return nil
	}
	if _, err := storage.ParseLocation(uri); err != nil {
		return domain.Invalid("bucket %q: %v", uri, err)
	}
	return nil
}
