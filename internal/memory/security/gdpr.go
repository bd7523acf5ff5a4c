package security

import (
	"context"
	"encoding/json"
	"fmt"
)

// DataStore is the persistence surface the GDPR operations need.
// store.Store satisfies it.
type DataStore interface {
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	InsertAuditLog(ctx context.Context, userID, action, detail string) error
}

// Exporter produces the payload for a data-subject export request;
// ingestion/retrieval wire their own store-backed implementation in
// since export needs the full memory listing, not just deletion.
type Exporter interface {
	ExportUser(ctx context.Context, userID string) (interface{}, error)
}

// GDPR bundles the data-subject rights operations (export, delete,
// anonymize) behind a single audited entry point.
type GDPR struct {
	store    DataStore
	exporter Exporter
}

// NewGDPR builds a GDPR operations handle.
func NewGDPR(store DataStore, exporter Exporter) *GDPR {
	return &GDPR{store: store, exporter: exporter}
}

// Export returns every stored record for userID as a JSON document,
// suitable for a data-portability response, and records the access in
// the audit log.
func (g *GDPR) Export(ctx context.Context, userID string) ([]byte, error) {
	data, err := g.exporter.ExportUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	out, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal export: %w", err)
	}
	if err := g.store.InsertAuditLog(ctx, userID, "gdpr_export", fmt.Sprintf("%d bytes", len(out))); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete permanently removes every memory belonging to userID (the
// right to erasure) and records the action.
func (g *GDPR) Delete(ctx context.Context, userID string) (int64, error) {
	n, err := g.store.DeleteByUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if err := g.store.InsertAuditLog(ctx, userID, "gdpr_delete", fmt.Sprintf("%d memories deleted", n)); err != nil {
		return n, err
	}
	return n, nil
}

// Anonymize is a softer alternative to Delete: it exports the user's
// data for the subject's own records, then deletes the identifiable
// copy, leaving only the audit trail behind.
func (g *GDPR) Anonymize(ctx context.Context, userID string) ([]byte, int64, error) {
	export, err := g.Export(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	n, err := g.Delete(ctx, userID)
	if err != nil {
		return export, 0, err
	}
	return export, n, nil
}
