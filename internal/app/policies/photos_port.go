package policies

import (
	"context"
	"io"
)

// PhotoStore persists condition photos taken at handover and return and
// yields a URL that can be embedded in the rental record.
type PhotoStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) (publicURL string, err error)
}
