package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
)

func TestExportForest(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	forest := BuildForest([]hierarchy.Node{
		{EmployeeID: a, Name: "Alice", Email: "alice@example.com", Title: "CEO"},
		{EmployeeID: b, Name: "Bob", Email: "bob@example.com", ManagerID: ptr(a)},
		{EmployeeID: c, Name: "Carol", Email: "carol@example.com", ManagerID: ptr(b)},
	})

	f, err := ExportForest(forest)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })

	rows, err := f.GetRows(exportSheet)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Name", rows[0][0])
	assert.Equal(t, []string{"Alice", "alice@example.com", "CEO", "", "", "1", "1", "2"}, rows[1])
	assert.Equal(t, "Bob", rows[2][0])
	assert.Equal(t, "Alice", rows[2][4])
	assert.Equal(t, "3", rows[3][5])
}
