package profile

import (
	"bytes"
	"context"
	"testing"

	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
	"github.com/IBigIBruce/MTGA-Backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExportImport(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	char := createChar(t, m, 1, "alice")
	ammo := addAmmo(t, m, char.ID, 40)

	data, err := m.Export(ctx, char.ID)
	require.NoError(t, err)
	require.NotEmpty(t, data)

	// Diverge, then restore.
	require.NoError(t, m.Update(ctx, char.ID, func(p *Profile) error {
		_, err := p.Inventory().RemoveItem(ammo.ID, 0, inventory.NewChangeSet())
		p.Level = 9
		return err
	}))
	require.NoError(t, m.Import(ctx, char.ID, data))

	require.NoError(t, m.View(ctx, char.ID, func(p *Profile) error {
		assert.Equal(t, 40, p.Inventory().TotalCount(testutil.AmmoTpl))
		assert.Equal(t, 1, p.Level)
		assert.Equal(t, "alice", p.Name)
		return nil
	}))

	// Import saves at once.
	loaded, err := store.Load(ctx, char.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, loaded.Inventory().TotalCount(testutil.AmmoTpl))
}

func TestImport_RejectsForeignRoots(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	alice := createChar(t, m, 1, "alice")
	bob := createChar(t, m, 1, "bob")

	data, err := m.Export(ctx, alice.ID)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Import(ctx, bob.ID, data), ErrBadSnapshot)
}

func TestImport_RejectsCorruptTree(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	char := createChar(t, m, 1, "alice")

	var s Snapshot
	require.NoError(t, m.View(ctx, char.ID, func(p *Profile) error {
		s = p.snapshot()
		return nil
	}))
	s.Items = append(s.Items, inventory.Item{ID: "orphan", TemplateID: testutil.AmmoTpl, ParentID: "missing", SlotID: "main"})
	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, s))

	assert.ErrorIs(t, m.Import(ctx, char.ID, buf.Bytes()), ErrBadSnapshot)
	require.NoError(t, m.View(ctx, char.ID, func(p *Profile) error {
		assert.Equal(t, 2, p.Inventory().Len())
		return nil
	}))
}

func TestReadSnapshot_Garbage(t *testing.T) {
	_, err := ReadSnapshot(bytes.NewReader([]byte("not zstd")))
	assert.ErrorIs(t, err, ErrBadSnapshot)

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, Snapshot{Version: 99}))
	_, err = ReadSnapshot(&buf)
	assert.ErrorIs(t, err, ErrBadSnapshot)
}
