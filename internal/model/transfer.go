package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"spendman/internal/docstore"
	"spendman/internal/legacy"
	"spendman/internal/log"
	"spendman/internal/platform"
	"spendman/internal/schema"
)

// ErrMalformedImport reports an import payload that could not be parsed.
// Nothing is mutated when it is returned.
var ErrMalformedImport = errors.New("malformed import payload")

const exportFileName = "spending_manager_export.json"

// exportPayload is the bulk transfer format: a schema marker plus every
// document verbatim, revisions included.
type exportPayload struct {
	Schema int               `json:"schema"`
	Docs   []json.RawMessage `json:"docs"`
}

// ExportData writes every document to a cache file and returns a
// reference to it for the host to share.
func (m *Model) ExportData(ctx context.Context) (string, error) {
	engine, err := m.ensureInit()
	if err != nil {
		return "", err
	}

	docs, err := engine.AllDocs(ctx)
	if err != nil {
		return "", fmt.Errorf("read documents: %w", err)
	}
	payload := exportPayload{Schema: schema.Version, Docs: make([]json.RawMessage, 0, len(docs))}
	for _, doc := range docs {
		payload.Docs = append(payload.Docs, doc.Body)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode export: %w", err)
	}
	ref, err := m.files.WriteCache(exportFileName, data)
	if err != nil {
		return "", fmt.Errorf("write export file: %w", err)
	}
	m.logger.WithComponent(log.ComponentExport).Info("[export] wrote export file", log.FieldDocCount, len(docs))
	return ref, nil
}

// ImportData replaces the entire store with the documents of a previously
// exported file. A payload that fails to parse leaves the store untouched.
func (m *Model) ImportData(ctx context.Context, picked platform.Picked) error {
	if _, err := m.ensureInit(); err != nil {
		return err
	}

	raw, err := m.files.ReadPicked(picked)
	if err != nil {
		return fmt.Errorf("read import file: %w", err)
	}

	var payload exportPayload
	if err := json.Unmarshal(raw, &payload); err != nil || payload.Docs == nil {
		return fmt.Errorf("%w: expected a docs array", ErrMalformedImport)
	}

	docs := make([]docstore.Document, 0, len(payload.Docs))
	for _, body := range payload.Docs {
		var meta struct {
			ID string `json:"_id"`
		}
		if err := json.Unmarshal(body, &meta); err != nil || meta.ID == "" {
			continue
		}
		docs = append(docs, docstore.Document{ID: meta.ID, Body: body})
	}

	return m.replaceStore(ctx, docs)
}

// ImportLegacyData converts an export of the predecessor app and replaces
// the store with the converted documents.
func (m *Model) ImportLegacyData(ctx context.Context, picked platform.Picked) error {
	if _, err := m.ensureInit(); err != nil {
		return err
	}

	raw, err := m.files.ReadPicked(picked)
	if err != nil {
		return fmt.Errorf("read legacy file: %w", err)
	}

	values, err := legacy.ToDocs(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedImport, err)
	}
	docs := make([]docstore.Document, 0, len(values))
	for _, v := range values {
		doc, err := docstore.FromValue(v)
		if err != nil {
			return err
		}
		docs = append(docs, doc)
	}

	return m.replaceStore(ctx, docs)
}

// replaceStore wipes the store and writes docs as fresh documents, then
// reloads the in-memory caches and restarts sync. Revisions from the
// source are dropped so the documents start a new history here.
func (m *Model) replaceStore(ctx context.Context, docs []docstore.Document) error {
	engine, err := m.ensureInit()
	if err != nil {
		return err
	}

	if err := engine.Destroy(ctx); err != nil {
		return fmt.Errorf("clear store: %w", err)
	}

	implog := m.logger.WithComponent(log.ComponentImport)

	cleaned := make([]docstore.Document, 0, len(docs))
	for _, doc := range docs {
		body, err := stripRev(doc.Body)
		if err != nil {
			implog.Warn("[import] skipping unreadable document",
				log.FieldDocID, doc.ID, log.FieldError, err.Error())
			continue
		}
		cleaned = append(cleaned, docstore.Document{ID: doc.ID, Body: body})
	}

	results := engine.BulkWrite(ctx, cleaned)
	written := 0
	for _, res := range results {
		if res.Err != nil {
			implog.Warn("[import] document write failed",
				log.FieldDocID, res.ID, log.FieldError, res.Err.Error())
			continue
		}
		written++
	}
	implog.Info("[import] store replaced", log.FieldDocCount, written)

	settings, err := m.loadSettings(ctx, engine)
	if err != nil {
		return err
	}
	if settings == nil {
		seeded := schema.NewSettings(m.cfg.NormalizeRemoteURL(""))
		doc, err := docstore.FromValue(seeded)
		if err != nil {
			return err
		}
		rev, err := engine.Put(ctx, doc)
		if err != nil {
			return fmt.Errorf("reseed settings: %w", err)
		}
		seeded.Rev = rev
		settings = &seeded
	} else {
		m.normalizeStoredURL(ctx, engine, settings)
	}

	cats, err := loadCategories(ctx, engine)
	if err != nil {
		return fmt.Errorf("reload categories: %w", err)
	}

	m.mu.Lock()
	m.settings = settings
	m.categories = cats
	m.weeklyExp = nil
	m.monthlyExp = nil
	m.mu.Unlock()

	m.syncMgr.Restart(ctx)
	return nil
}

// stripRev removes the _rev field from a document body.
func stripRev(body json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	if _, ok := fields["_rev"]; !ok {
		return body, nil
	}
	delete(fields, "_rev")
	return json.Marshal(fields)
}
