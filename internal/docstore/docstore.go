// Package docstore provides the keyed document store behind the model: a
// sqlite engine for persistent installs and a memory engine used as the
// fallback and by tests. Documents are JSON bodies keyed by string id with
// CouchDB-style revision checks on writes.
package docstore

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"spendman/internal/log"
)

var (
	// ErrNotFound reports a lookup miss. Callers treat it as a normal
	// branch, never as a failure.
	ErrNotFound = errors.New("document not found")

	// ErrConflict reports a revision mismatch on put or remove.
	ErrConflict = errors.New("document revision conflict")
)

// Document is one stored document. Body holds the full JSON including the
// _id and _rev fields; ID and Rev mirror them for key handling.
type Document struct {
	ID   string
	Rev  string
	Body json.RawMessage
}

// WriteResult is the per-document outcome of a bulk write.
type WriteResult struct {
	ID  string
	Rev string
	Err error
}

// Engine is the contract every store engine satisfies. Range scans return
// documents in ascending id order; both bounds are inclusive, so prefix
// scans pass prefix and prefix+"￿".
type Engine interface {
	Name() string
	Get(ctx context.Context, id string) (Document, error)
	Put(ctx context.Context, doc Document) (string, error)
	Remove(ctx context.Context, doc Document) error
	BulkWrite(ctx context.Context, docs []Document) []WriteResult
	RangeScan(ctx context.Context, startKey, endKey string) ([]Document, error)
	AllDocs(ctx context.Context) ([]Document, error)
	Destroy(ctx context.Context) error
	Close() error
}

// Options configures Open.
type Options struct {
	Name     string
	Platform string
	DataDir  string
}

// Open opens the document store for the given platform. Constrained
// platforms get the sqlite engine with a health probe; if the probe fails
// the memory engine takes over so the app still runs, at the cost of
// persistence. The chosen engine is always logged.
func Open(ctx context.Context, opts Options, logger *log.Logger) (Engine, error) {
	logger = logger.WithComponent(log.ComponentDB)
	if opts.Platform == "memory" {
		logger.Info("[db] opened", log.FieldEngine, "memory", "name", opts.Name)
		return NewMemoryEngine(), nil
	}

	eng, err := OpenSQLite(opts.DataDir, opts.Name)
	if err == nil {
		if probeErr := eng.probe(ctx); probeErr == nil {
			logger.Info("[db] opened", log.FieldEngine, "sqlite", "name", opts.Name)
			return eng, nil
		} else {
			eng.Close()
			err = probeErr
		}
	}

	logger.Warn("[db] sqlite failed, falling back", log.FieldError, err.Error(), "name", opts.Name)
	logger.Info("[db] opened", log.FieldEngine, "fallback", "name", opts.Name)
	return NewMemoryEngine(), nil
}

// PutIfMissing writes doc only when no document with its id exists.
// It reports whether a write happened.
func PutIfMissing(ctx context.Context, eng Engine, doc Document) (bool, error) {
	_, err := eng.Get(ctx, doc.ID)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return false, err
	}
	if _, err := eng.Put(ctx, doc); err != nil {
		return false, err
	}
	return true, nil
}

// FromValue marshals a schema document into a Document, reading _id and
// _rev out of the encoded body.
func FromValue(v any) (Document, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return Document{}, fmt.Errorf("marshal document: %w", err)
	}
	var meta struct {
		ID  string `json:"_id"`
		Rev string `json:"_rev"`
	}
	if err := json.Unmarshal(body, &meta); err != nil {
		return Document{}, fmt.Errorf("read document identity: %w", err)
	}
	if meta.ID == "" {
		return Document{}, errors.New("document has no _id")
	}
	return Document{ID: meta.ID, Rev: meta.Rev, Body: body}, nil
}

// Unmarshal decodes the document body into v.
func (d Document) Unmarshal(v any) error {
	return json.Unmarshal(d.Body, v)
}

// nextRev produces the revision that supersedes prev, in the N-suffix
// style replication peers expect.
func nextRev(prev string) string {
	gen := 0
	if prev != "" {
		if i := strings.IndexByte(prev, '-'); i > 0 {
			if n, err := strconv.Atoi(prev[:i]); err == nil {
				gen = n
			}
		}
	}
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return strconv.Itoa(gen+1) + "-0000000000000000"
	}
	return strconv.Itoa(gen+1) + "-" + hex.EncodeToString(b)
}

// withRev rewrites the _id and _rev fields inside body so stored bodies
// always carry their current revision.
func withRev(body json.RawMessage, id, rev string) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("decode document body: %w", err)
	}
	idRaw, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	revRaw, err := json.Marshal(rev)
	if err != nil {
		return nil, err
	}
	m["_id"] = idRaw
	m["_rev"] = revRaw
	return json.Marshal(m)
}
