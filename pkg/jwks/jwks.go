// Package jwks publishes the public half of the signing keyring so
// token consumers can verify tokens without calling back.
//
// The set is served over HTTP by [Handler] and can also be pushed to
// object storage by [Publisher] for consumers that cannot reach the
// service. Symmetric keys never appear in either.
package jwks

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// DefaultObject is where Publisher writes the set.
const DefaultObject = ".well-known/jwks.json"

// DefaultMaxAge is the cache lifetime advertised for the set.
const DefaultMaxAge = 5 * time.Minute

const contentType = "application/json"

// Handler serves ring's public keys. The document is rendered once; the
// keyring is immutable.
func Handler(ring *credentials.Keyring) (http.Handler, error) {
	body, err := json.Marshal(ring.JWKS())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "jwks: failed to encode key set")
	}
	cacheControl := "public, max-age=" + strconv.Itoa(int(DefaultMaxAge.Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", cacheControl)
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	}), nil
}

// Uploader is the object storage the publisher writes to. It is
// satisfied by the minio client in pkg/clients/minio.
type Uploader interface {
	EnsureBucket(ctx context.Context) error
	PutObject(ctx context.Context, object string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// Publisher uploads the key set to object storage.
type Publisher struct {
	uploader Uploader
	object   string
	logger   *slog.Logger
}

// PublisherOption configures a Publisher.
type PublisherOption func(*Publisher)

// WithObject overrides [DefaultObject].
func WithObject(name string) PublisherOption {
	return func(p *Publisher) {
		if name != "" {
			p.object = name
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) PublisherOption {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPublisher returns a Publisher writing through uploader.
func NewPublisher(uploader Uploader, opts ...PublisherOption) *Publisher {
	p := &Publisher{uploader: uploader, object: DefaultObject, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish writes ring's public keys, creating the bucket if needed.
// Publishing an empty set is allowed so a rotation to symmetric keys
// clears stale public keys.
func (p *Publisher) Publish(ctx context.Context, ring *credentials.Keyring) error {
	set := ring.JWKS()
	body, err := json.Marshal(set)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeInternal, "jwks: failed to encode key set")
	}
	if err := p.uploader.EnsureBucket(ctx); err != nil {
		return err
	}
	_, err = p.uploader.PutObject(ctx, p.object, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType:  contentType,
		CacheControl: "public, max-age=" + strconv.Itoa(int(DefaultMaxAge.Seconds())),
	})
	if err != nil {
		return err
	}
	p.logger.InfoContext(ctx, "published verification keys",
		slog.String("object", p.object),
		slog.Int("keys", len(set.Keys)))
	return nil
}
