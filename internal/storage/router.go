package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/unsighted-org/demo-1biome-sub001/pkg/storage"
)

// Ensure implementation satisfies interface at compile time.
var _ storage.Router = (*DefaultRouter)(nil)

// DefaultRouter implements Hive-style partitioning for storage paths.
type DefaultRouter struct {
	protocol string
	bucket   string
	basePath string
}

// NewRouter creates a new storage router. Empty bucket or basePath segments
// are omitted from routed paths.
func NewRouter(protocol, bucket, basePath string) *DefaultRouter {
	return &DefaultRouter{
		protocol: protocol,
		bucket:   bucket,
		basePath: strings.Trim(basePath, "/"),
	}
}

// Route returns the directory for a stream batch.
// Format: protocol://bucket/basePath/stream/dt=YYYY-MM-DD/hr=HH/
// t is the event time of the batch's first record, in UTC.
func (r *DefaultRouter) Route(stream string, t time.Time) string {
	t = t.UTC()

	segments := make([]string, 0, 5)
	for _, s := range []string{r.bucket, r.basePath, stream} {
		if s != "" {
			segments = append(segments, s)
		}
	}
	segments = append(segments,
		"dt="+t.Format("2006-01-02"),
		fmt.Sprintf("hr=%02d", t.Hour()),
	)

	return fmt.Sprintf("%s://%s/", r.protocol, strings.Join(segments, "/"))
}

// Protocol returns the scheme routed paths start with.
func (r *DefaultRouter) Protocol() string {
	return r.protocol
}
