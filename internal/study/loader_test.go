package study

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optiview/optiview/internal/errors"
	"github.com/optiview/optiview/internal/logger"
	"github.com/optiview/optiview/internal/storage"
	"github.com/optiview/optiview/pkg/types"
)

const testSchema = `
design_vars:
  - [floating.jointdv_0, {lower: -2.0, upper: 2.0, size: 1}]
constraints:
  - [raft.heave_period, {lower: 10.0, upper: 20.0, size: 1}]
objectives:
  - [raft.pitch, {size: 1}]
  - [rotor.chord, {lower: 0.5, upper: 6.0, size: 3}]
`

const testTable = `iter,floating.jointdv_0,raft.heave_period,raft.pitch,rotor.chord
0,0.5,15.0,5.1,[1.0 2.0 1.5]
1,-0.3,17.5,4.2,[1.1 2.2 1.4]
2,1.2,25.0,3.9,[0.9 1.8 1.2]
`

func newTestLoader(t *testing.T) (*Loader, *storage.LocalStorage) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return NewLoader(store, logger.NewNop(), ',', 0), store
}

func putObject(t *testing.T, store *storage.LocalStorage, objectPath, content string) {
	t.Helper()
	local := filepath.Join(t.TempDir(), "obj")
	require.NoError(t, os.WriteFile(local, []byte(content), 0644))
	require.NoError(t, store.Upload(context.Background(), local, objectPath))
}

func TestLoaderLoad(t *testing.T) {
	loader, store := newTestLoader(t)
	putObject(t, store, "studies/rotor/schema.yaml", testSchema)
	putObject(t, store, "studies/rotor/log.csv", testTable)

	st, err := loader.Load(context.Background(), "studies/rotor/schema.yaml", "studies/rotor/log.csv")
	require.NoError(t, err)

	assert.Equal(t, 4, st.Definition.Count())
	assert.Equal(t, 3, st.Data.RowCount())
	assert.Equal(t, "studies/rotor/schema.yaml", st.SchemaSource)
	assert.Equal(t, "studies/rotor/log.csv", st.TableSource)
	assert.NotZero(t, st.Fingerprint)
	assert.False(t, st.LoadedAt.IsZero())

	// Reductions run as part of the load.
	require.True(t, st.Data.HasColumn("rotor.chord_min"))
	require.True(t, st.Data.HasColumn("rotor.chord_max"))

	// Scalar columns never grow reductions; the out-of-bounds heave value
	// in row 2 stays visible in the raw column.
	require.False(t, st.Data.HasColumn("raft.heave_period_min"))
	raw, ok := st.Data.Column("raft.heave_period")
	require.True(t, ok)
	assert.Equal(t, 25.0, raw.Scalars[2])
}

func TestLoaderLoadFromFiles(t *testing.T) {
	loader, _ := newTestLoader(t)

	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.yaml")
	tablePath := filepath.Join(dir, "log.csv")
	require.NoError(t, os.WriteFile(schemaPath, []byte(testSchema), 0644))
	require.NoError(t, os.WriteFile(tablePath, []byte(testTable), 0644))

	st, err := loader.LoadFromFiles(context.Background(), schemaPath, tablePath)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Data.RowCount())
	assert.Equal(t, schemaPath, st.SchemaSource)
}

func TestLoaderMissingObject(t *testing.T) {
	loader, store := newTestLoader(t)
	putObject(t, store, "studies/rotor/schema.yaml", testSchema)

	_, err := loader.Load(context.Background(), "studies/rotor/schema.yaml", "studies/rotor/log.csv")
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, errors.CodeObjectNotFound, errors.GetCode(err))
}

func TestLoaderMissingColumn(t *testing.T) {
	loader, _ := newTestLoader(t)

	table := `iter,floating.jointdv_0,raft.heave_period,raft.pitch
0,0.5,15.0,5.1
`
	st, err := loadFromStrings(t, loader, testSchema, table)
	require.Error(t, err)
	assert.Nil(t, st)
	assert.True(t, errors.IsDataFormatError(err))
	assert.Equal(t, errors.CodeMissingColumn, errors.GetCode(err))
}

func TestLoaderWidthMismatch(t *testing.T) {
	loader, _ := newTestLoader(t)

	table := `iter,floating.jointdv_0,raft.heave_period,raft.pitch,rotor.chord
0,0.5,15.0,5.1,[1.0 2.0]
`
	_, err := loadFromStrings(t, loader, testSchema, table)
	require.Error(t, err)
	assert.Equal(t, errors.CodeWidthMismatch, errors.GetCode(err))

	var e *errors.Error
	require.ErrorAs(t, err, &e)
	assert.Equal(t, 3, e.Details["declared"])
	assert.Equal(t, 2, e.Details["actual"])
}

func TestLoaderScalarDeclaredAsArray(t *testing.T) {
	loader, _ := newTestLoader(t)

	// raft.pitch declared size 1 but the table carries width-2 arrays.
	table := `iter,floating.jointdv_0,raft.heave_period,raft.pitch,rotor.chord
0,0.5,15.0,[5.1 5.2],[1.0 2.0 1.5]
`
	_, err := loadFromStrings(t, loader, testSchema, table)
	require.Error(t, err)
	assert.Equal(t, errors.CodeWidthMismatch, errors.GetCode(err))
}

func TestLoaderRowLimit(t *testing.T) {
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	loader := NewLoader(store, logger.NewNop(), ',', 2)

	_, err = loadFromStrings(t, loader, testSchema, testTable)
	require.Error(t, err)
	assert.Equal(t, errors.CodeTableTooLarge, errors.GetCode(err))
}

func TestLoaderBadSchema(t *testing.T) {
	loader, _ := newTestLoader(t)

	_, err := loadFromStrings(t, loader, "design_vars:\n  - [x, {size: 1}]\n", testTable)
	require.Error(t, err)
	assert.True(t, errors.IsSchemaError(err))
}

func TestLoaderBadTable(t *testing.T) {
	loader, _ := newTestLoader(t)

	table := `iter,floating.jointdv_0,raft.heave_period,raft.pitch,rotor.chord
0,0.5,abc,5.1,[1.0 2.0 1.5]
`
	_, err := loadFromStrings(t, loader, testSchema, table)
	require.Error(t, err)
	assert.True(t, errors.IsDataFormatError(err))
	assert.Equal(t, errors.CodeBadNumericCell, errors.GetCode(err))
}

func TestDefaultObjectives(t *testing.T) {
	loader, _ := newTestLoader(t)

	st, err := loadFromStrings(t, loader, testSchema, testTable)
	require.NoError(t, err)

	objs := st.DefaultObjectives()
	// rotor.chord is array-valued and is skipped.
	require.Len(t, objs, 1)
	assert.Equal(t, "raft.pitch", objs[0].Name)
	assert.Equal(t, types.SenseMinimize, objs[0].Sense)
}

func TestRoleOf(t *testing.T) {
	loader, _ := newTestLoader(t)

	st, err := loadFromStrings(t, loader, testSchema, testTable)
	require.NoError(t, err)

	role, ok := st.RoleOf("raft.heave_period")
	require.True(t, ok)
	assert.Equal(t, types.RoleConstraint, role)

	// Derived columns inherit the base variable's role.
	role, ok = st.RoleOf("rotor.chord_min")
	require.True(t, ok)
	assert.Equal(t, types.RoleObjective, role)

	_, ok = st.RoleOf("iter")
	assert.False(t, ok)
}

func loadFromStrings(t *testing.T, loader *Loader, schemaDoc, tableDoc string) (*Study, error) {
	t.Helper()
	dir := t.TempDir()
	schemaPath := filepath.Join(dir, "schema.yaml")
	tablePath := filepath.Join(dir, "log.csv")
	require.NoError(t, os.WriteFile(schemaPath, []byte(schemaDoc), 0644))
	require.NoError(t, os.WriteFile(tablePath, []byte(tableDoc), 0644))
	return loader.LoadFromFiles(context.Background(), schemaPath, tablePath)
}
