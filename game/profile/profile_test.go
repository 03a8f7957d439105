package profile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/IBigIBruce/MTGA-Backend/game/hideout"
	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
	"github.com/IBigIBruce/MTGA-Backend/model"
	"github.com/IBigIBruce/MTGA-Backend/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManager(t *testing.T) (*Manager, *Store) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	c, _ := testutil.SetupTestCache(t)
	store := NewStore(db, testutil.Catalog(t))
	m := NewManager(store, c, zap.NewNop(), Options{
		LockTTL:           5 * time.Second,
		StashTemplate:     testutil.StashTpl,
		EquipmentTemplate: testutil.EquipmentTpl,
	})
	return m, store
}

func createChar(t *testing.T, m *Manager, accountID int64, name string) *model.Character {
	t.Helper()
	char, err := m.Create(context.Background(), accountID, name, "")
	require.NoError(t, err)
	return char
}

func addAmmo(t *testing.T, m *Manager, charID int64, count int) inventory.Item {
	t.Helper()
	var added inventory.Item
	err := m.Update(context.Background(), charID, func(p *Profile) error {
		var err error
		added, err = p.Inventory().AddItem(p.Inventory().StashRef(),
			inventory.Item{TemplateID: testutil.AmmoTpl, StackCount: count}, inventory.NewChangeSet())
		return err
	})
	require.NoError(t, err)
	return added
}

func TestCreate_SeedsProfile(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	char := createChar(t, m, 1, "alice")
	assert.Equal(t, "Usec", char.Side)
	assert.NotEqual(t, char.StashID, char.EquipmentID)

	err := m.View(ctx, char.ID, func(p *Profile) error {
		assert.Equal(t, int64(1), p.AccountID)
		assert.Equal(t, 2, p.Inventory().Len())
		assert.Equal(t, char.StashID, p.Inventory().StashID())
		assert.Len(t, p.Hideout().Areas, 2)
		assert.Len(t, p.Hideout().Productions, 2)
		assert.Len(t, p.Hideout().Areas[hideout.AreaGenerator].Slots, 2)
		return nil
	})
	require.NoError(t, err)

	chars, err := m.List(ctx, 1)
	require.NoError(t, err)
	require.Len(t, chars, 1)
	assert.Equal(t, "alice", chars[0].Name)
}

func TestCreate_DuplicateName(t *testing.T) {
	m, _ := newManager(t)
	createChar(t, m, 1, "alice")
	_, err := m.Create(context.Background(), 2, "alice", "Bear")
	assert.Error(t, err)
}

func TestLoad_NotFound(t *testing.T) {
	m, _ := newManager(t)
	err := m.View(context.Background(), 999, func(*Profile) error { return nil })
	assert.ErrorIs(t, err, ErrCharacterNotFound)
}

func TestFlush_RoundTrip(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	char := createChar(t, m, 1, "alice")
	ammo := addAmmo(t, m, char.ID, 30)

	require.NoError(t, m.Update(ctx, char.ID, func(p *Profile) error {
		_, err := p.Examine(ammo.ID)
		if err != nil {
			return err
		}
		a := p.Hideout().Areas[hideout.AreaGenerator]
		a.Level = 1
		a.Improvements = map[string]*hideout.Improvement{"gen-imp-1": {CompleteTime: 77}}
		pr := p.Hideout().Productions["r1"]
		pr.InProgress = true
		pr.StartTimestamp = 10
		pr.Products = []inventory.Item{{ID: "prod-1", TemplateID: testutil.FuelTpl, StackCount: 2}}
		return nil
	}))
	assert.Equal(t, Stats{Loaded: 1, Dirty: 1}, m.Stats())

	n, err := m.FlushDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, Stats{Loaded: 1, Dirty: 0}, m.Stats())

	loaded, err := store.Load(ctx, char.ID)
	require.NoError(t, err)
	got, err := loaded.Inventory().Get(ammo.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, got.StackCount)
	require.NotNil(t, got.Location)
	assert.True(t, loaded.Encyclopedia[testutil.AmmoTpl])

	gen := loaded.Hideout().Areas[hideout.AreaGenerator]
	assert.Equal(t, 1, gen.Level)
	require.Contains(t, gen.Improvements, "gen-imp-1")
	assert.Equal(t, int64(77), gen.Improvements["gen-imp-1"].CompleteTime)
	pr := loaded.Hideout().Productions["r1"]
	assert.True(t, pr.InProgress)
	require.Len(t, pr.Products, 1)
	assert.Equal(t, "prod-1", pr.Products[0].ID)
}

func TestSlottedItem_SurvivesReload(t *testing.T) {
	m, store := newManager(t)
	ctx := context.Background()
	char := createChar(t, m, 1, "alice")
	engine := hideout.NewEngine(testutil.Catalog(t))

	var fuelID string
	require.NoError(t, m.Update(ctx, char.ID, func(p *Profile) error {
		fuel, err := p.Inventory().AddItem(p.Inventory().StashRef(),
			inventory.Item{TemplateID: testutil.FuelTpl, StackCount: 1}, inventory.NewChangeSet())
		if err != nil {
			return err
		}
		fuelID = fuel.ID
		return engine.AddItemToSlot(p, hideout.AreaGenerator, 1, fuel.ID, inventory.NewChangeSet())
	}))
	require.NoError(t, m.Flush(ctx, char.ID))

	loaded, err := store.Load(ctx, char.ID)
	require.NoError(t, err)
	it, err := loaded.Inventory().Get(fuelID)
	require.NoError(t, err)
	assert.Equal(t, hideout.AreaContainerID(hideout.AreaGenerator), it.ParentID)
	slot := loaded.Hideout().Areas[hideout.AreaGenerator].Slots[1]
	require.NotNil(t, slot)
	assert.Equal(t, fuelID, slot.ID)

	// A stale slots column is overridden by the items on load.
	require.NoError(t, store.db.Model(&model.HideoutArea{}).
		Where("char_id = ? AND area_type = ?", char.ID, int(hideout.AreaGenerator)).
		Update("slots", `[{"_id":"ghost","_tpl":"fuel"},null]`).Error)
	loaded, err = store.Load(ctx, char.ID)
	require.NoError(t, err)
	slots := loaded.Hideout().Areas[hideout.AreaGenerator].Slots
	assert.Nil(t, slots[0])
	require.NotNil(t, slots[1])
	assert.Equal(t, fuelID, slots[1].ID)
}

func TestUpdate_ErrorStillMarksDirty(t *testing.T) {
	m, _ := newManager(t)
	char := createChar(t, m, 1, "alice")
	boom := errors.New("boom")
	err := m.Update(context.Background(), char.ID, func(*Profile) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, m.Stats().Dirty)
}

func TestUpdate_LeaseHeldElsewhere(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	char := createChar(t, m, 1, "alice")
	ok, err := m.cache.SetNX(ctx, "lock:profile:1", "other-process", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	err = m.Update(ctx, char.ID, func(*Profile) error { return nil })
	assert.ErrorIs(t, err, ErrCharacterBusy)

	// Reads do not need the lease.
	assert.NoError(t, m.View(ctx, char.ID, func(*Profile) error { return nil }))
}

func TestUpdate_ReleasesLease(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	char := createChar(t, m, 1, "alice")
	require.NoError(t, m.Update(ctx, char.ID, func(*Profile) error { return nil }))
	exists, err := m.cache.Exists(ctx, "lock:profile:1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestUpdate_ConcurrentWritersSerialise(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	char := createChar(t, m, 1, "alice")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.Update(ctx, char.ID, func(p *Profile) error {
				p.Level++
				return nil
			}))
		}()
	}
	wg.Wait()
	require.NoError(t, m.View(ctx, char.ID, func(p *Profile) error {
		assert.Equal(t, 21, p.Level)
		return nil
	}))
}

func TestEvictIdle(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	now := time.Unix(10_000, 0)
	m.now = func() time.Time { return now }

	char := createChar(t, m, 1, "alice")
	addAmmo(t, m, char.ID, 5)

	// Dirty profiles are kept.
	now = now.Add(time.Hour)
	assert.Equal(t, 0, m.EvictIdle(time.Minute))

	_, err := m.FlushDirty(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, m.EvictIdle(time.Minute))
	assert.Equal(t, Stats{}, m.Stats())

	// Reloading brings the flushed state back.
	require.NoError(t, m.View(ctx, char.ID, func(p *Profile) error {
		assert.Equal(t, 5, p.Inventory().TotalCount(testutil.AmmoTpl))
		return nil
	}))
}

func TestAuthorize(t *testing.T) {
	m, _ := newManager(t)
	ctx := context.Background()
	char := createChar(t, m, 1, "alice")
	assert.NoError(t, m.Authorize(ctx, char.ID, 1))
	assert.ErrorIs(t, m.Authorize(ctx, char.ID, 2), ErrCharacterNotFound)
}

func TestExamine_UnknownItem(t *testing.T) {
	m, _ := newManager(t)
	char := createChar(t, m, 1, "alice")
	err := m.Update(context.Background(), char.ID, func(p *Profile) error {
		_, err := p.Examine("nope")
		return err
	})
	assert.ErrorIs(t, err, inventory.ErrNotFound)
}
