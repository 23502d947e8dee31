package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DocStore is a minimal document store modeled after MongoDB collection
// operations. Filters are equality matches on top-level fields.
type DocStore interface {
	// InsertOne returns an error matching ErrDuplicateKey when a unique index rejects the document.
	InsertOne(ctx context.Context, collection string, document interface{}) error
	// FindOne returns an error matching ErrNoDocuments when nothing matches.
	FindOne(ctx context.Context, collection string, filter Filter, result interface{}) error
	// FindMany decodes every match into results, which must point to a slice.
	FindMany(ctx context.Context, collection string, filter Filter, results interface{}) error
	// UpdateOne sets fields on the first match and reports how many documents matched.
	UpdateOne(ctx context.Context, collection string, filter Filter, set Fields) (matched int64, err error)
	DeleteOne(ctx context.Context, collection string, filter Filter) (deleted int64, err error)
	DeleteMany(ctx context.Context, collection string, filter Filter) (deleted int64, err error)
	CountDocuments(ctx context.Context, collection string, filter Filter) (int64, error)
	// EnsureUniqueIndex is idempotent.
	EnsureUniqueIndex(ctx context.Context, collection, field string) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Filter selects documents whose fields equal every entry. An empty filter matches all.
type Filter map[string]interface{}

// Fields is a set of field assignments.
type Fields map[string]interface{}

var (
	ErrNoDocuments     = errors.New("no documents in result")
	ErrDuplicateKey    = errors.New("duplicate key")
	ErrUnsupportedURI  = errors.New("unsupported store uri")
	ErrStoreClosed     = errors.New("store is closed")
	ErrMissingKeyField = errors.New("document is missing its unique field")
	ErrCorruptDocument = errors.New("stored document cannot be decoded")
)

const (
	SchemeMongo    = "mongodb"
	SchemeMongoSRV = "mongodb+srv"
	SchemeBolt     = "bolt"
)

// DialOptions are backend settings applied when opening a store.
// Zero values leave the backend default in place.
type DialOptions struct {
	Database               string
	AppName                string
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	MaxPoolSize            uint64
	MinPoolSize            uint64
	DirectConnection       *bool
	RetryWrites            *bool
	// FileLockTimeout bounds how long the bolt backend waits for the file lock.
	FileLockTimeout time.Duration
}

// Open connects to the store named by uri. mongodb:// and mongodb+srv://
// select MongoDB; bolt://<path> selects an embedded bbolt file.
func Open(ctx context.Context, uri string, opts DialOptions) (DocStore, error) {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return nil, fmt.Errorf("%w: %q has no scheme", ErrUnsupportedURI, uri)
	}

	switch strings.ToLower(scheme) {
	case SchemeMongo, SchemeMongoSRV:
		return NewMongoDocStore(ctx, uri, opts)
	case SchemeBolt:
		if rest == "" {
			return nil, fmt.Errorf("%w: bolt uri needs a file path", ErrUnsupportedURI)
		}
		return NewBoltDocStore(rest, opts)
	default:
		return nil, fmt.Errorf("%w: scheme %q", ErrUnsupportedURI, scheme)
	}
}

// RedactURI hides credentials in a connection string for logging.
func RedactURI(uri string) string {
	scheme, rest, ok := strings.Cut(uri, "://")
	if !ok {
		return uri
	}
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return uri
	}
	slash := strings.Index(rest, "/")
	if slash >= 0 && slash < at {
		return uri
	}
	return scheme + "://***@" + rest[at+1:]
}
