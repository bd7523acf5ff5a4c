package security

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDataStore struct {
	deletedUser string
	deleteCount int64
	auditLog    []string
}

func (f *fakeDataStore) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	f.deletedUser = userID
	return f.deleteCount, nil
}

func (f *fakeDataStore) InsertAuditLog(ctx context.Context, userID, action, detail string) error {
	f.auditLog = append(f.auditLog, action)
	return nil
}

type fakeExporter struct {
	data map[string]interface{}
}

func (f *fakeExporter) ExportUser(ctx context.Context, userID string) (interface{}, error) {
	return f.data, nil
}

func TestGDPR_Export_RecordsAudit(t *testing.T) {
	ds := &fakeDataStore{}
	ex := &fakeExporter{data: map[string]interface{}{"memories": []string{"a", "b"}}}
	g := NewGDPR(ds, ex)

	out, err := g.Export(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Contains(t, string(out), "memories")
	assert.Equal(t, []string{"gdpr_export"}, ds.auditLog)
}

func TestGDPR_Delete_RemovesAndAudits(t *testing.T) {
	ds := &fakeDataStore{deleteCount: 7}
	g := NewGDPR(ds, &fakeExporter{})

	n, err := g.Delete(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
	assert.Equal(t, "user-1", ds.deletedUser)
	assert.Equal(t, []string{"gdpr_delete"}, ds.auditLog)
}

func TestGDPR_Anonymize_ExportsThenDeletes(t *testing.T) {
	ds := &fakeDataStore{deleteCount: 3}
	ex := &fakeExporter{data: map[string]interface{}{"x": 1}}
	g := NewGDPR(ds, ex)

	export, n, err := g.Anonymize(context.Background(), "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, export)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, []string{"gdpr_export", "gdpr_delete"}, ds.auditLog)
}
