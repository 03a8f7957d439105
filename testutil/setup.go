package testutil

import (
	"testing"

	"github.com/IBigIBruce/MTGA-Backend/cache"
	"github.com/IBigIBruce/MTGA-Backend/catalog"
	"github.com/IBigIBruce/MTGA-Backend/config"
	dbadapter "github.com/IBigIBruce/MTGA-Backend/db"
	"github.com/IBigIBruce/MTGA-Backend/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// Template ids used by Catalog.
const (
	StashTpl     = "stash"
	EquipmentTpl = "equipment"
	PouchTpl     = "pouch"
	AmmoTpl      = "ammo"
	FuelTpl      = "fuel"
	BoltsTpl     = "bolts"
	RifleTpl     = "rifle"

	GeneratorArea = 4
	WorkbenchArea = 10
)

// SetupTestDB creates an isolated in-memory SQLite DB and runs AutoMigrate.
// It requires no external services and is safe to use in parallel tests.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode: dbadapter.ModeMemory,
	})
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// Catalog builds a small catalog: a 10x10 stash, an equipment root, a 2x2
// pouch, stackable ammo/fuel/bolts, a 3x1 rifle, a generator with two
// upgrade stages and a workbench with fuel and rifle recipes.
func Catalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	items := []catalog.ItemTemplate{
		{ID: StashTpl, Name: "Stash", Width: 1, Height: 1,
			Grids: []catalog.GridDef{{Name: "hideout", Width: 10, Height: 10}}},
		{ID: EquipmentTpl, Name: "Equipment", Width: 1, Height: 1,
			Slots: []string{"Backpack", "FirstPrimaryWeapon", "SecuredContainer"}},
		{ID: PouchTpl, Name: "Pouch", Width: 2, Height: 2,
			Grids: []catalog.GridDef{{Name: "main", Width: 2, Height: 2}}},
		{ID: AmmoTpl, Name: "5.45 PS", Width: 1, Height: 1, Stackable: true, MaxStack: 60},
		{ID: FuelTpl, Name: "Fuel", Width: 1, Height: 1, Stackable: true, MaxStack: 100},
		{ID: BoltsTpl, Name: "Bolts", Width: 1, Height: 1, Stackable: true, MaxStack: 50},
		{ID: RifleTpl, Name: "AK-74", Width: 3, Height: 1},
	}
	areas := []catalog.AreaDef{
		{Type: GeneratorArea, Name: "Generator", Slots: 2, Stages: []catalog.StageDef{
			{Level: 0},
			{Level: 1, ConstructionTime: 500,
				RequiredItems: []catalog.ItemCount{{TemplateID: BoltsTpl, Count: 5}},
				Improvements: []catalog.ImprovementDef{
					{ID: "gen-imp-1", ImprovementTime: 100,
						RequiredItems: []catalog.ItemCount{{TemplateID: FuelTpl, Count: 1}}},
				}},
			{Level: 2, ConstructionTime: 1000},
		}},
		{Type: WorkbenchArea, Name: "Workbench", Stages: []catalog.StageDef{
			{Level: 0},
			{Level: 1, ConstructionTime: 60},
		}},
	}
	recipes := []catalog.RecipeDef{
		{ID: "r1", AreaType: WorkbenchArea, ProductionTime: 300, EndProduct: FuelTpl, Count: 2,
			RequiredItems: []catalog.ItemCount{{TemplateID: BoltsTpl, Count: 2}}},
		{ID: "r2", AreaType: WorkbenchArea, ProductionTime: 60, EndProduct: RifleTpl, Count: 1},
	}
	c, err := catalog.New(items, areas, recipes)
	require.NoError(t, err, "Catalog: New")
	return c
}
