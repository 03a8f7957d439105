package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBigIBruce/MTGA-Backend/game/hideout"
	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
	"github.com/IBigIBruce/MTGA-Backend/model"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const saveBatchSize = 200

// Store persists profiles through gorm. A save replaces every row of the
// character inside one transaction.
type Store struct {
	db      *gorm.DB
	catalog hideout.Catalog
}

// NewStore creates a Store.
func NewStore(db *gorm.DB, cat hideout.Catalog) *Store {
	return &Store{db: db, catalog: cat}
}

// Create inserts a new character with an empty stash, an equipment root and
// an idle hideout.
func (s *Store) Create(ctx context.Context, accountID int64, name, side, stashTpl, equipmentTpl string) (*model.Character, error) {
	char := &model.Character{
		AccountID:   accountID,
		Name:        name,
		Side:        side,
		Level:       1,
		StashID:     inventory.NewItemID(),
		EquipmentID: inventory.NewItemID(),
	}
	p := &Profile{StashID: char.StashID, EquipmentID: char.EquipmentID}
	items := []inventory.Item{
		{ID: char.StashID, TemplateID: stashTpl},
		{ID: char.EquipmentID, TemplateID: equipmentTpl},
	}
	if _, err := assemble(p, s.catalog, items, nil); err != nil {
		return nil, err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(char).Error; err != nil {
			return err
		}
		p.CharID = char.ID
		return writeRows(tx, p)
	})
	if err != nil {
		return nil, err
	}
	return char, nil
}

// List returns the characters of an account.
func (s *Store) List(ctx context.Context, accountID int64) ([]model.Character, error) {
	var chars []model.Character
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("id").Find(&chars).Error
	return chars, err
}

// Load reads a full profile.
func (s *Store) Load(ctx context.Context, charID int64) (*Profile, error) {
	db := s.db.WithContext(ctx)
	var char model.Character
	if err := db.First(&char, charID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, err
	}
	var (
		itemRows []model.InventoryItem
		areaRows []model.HideoutArea
		impRows  []model.HideoutImprovement
		prodRows []model.HideoutProduction
	)
	if err := db.Where("char_id = ?", charID).Find(&itemRows).Error; err != nil {
		return nil, err
	}
	if err := db.Where("char_id = ?", charID).Find(&areaRows).Error; err != nil {
		return nil, err
	}
	if err := db.Where("char_id = ?", charID).Find(&impRows).Error; err != nil {
		return nil, err
	}
	if err := db.Where("char_id = ?", charID).Find(&prodRows).Error; err != nil {
		return nil, err
	}

	p := &Profile{
		CharID:      char.ID,
		AccountID:   char.AccountID,
		Name:        char.Name,
		Side:        char.Side,
		Level:       char.Level,
		StashID:     char.StashID,
		EquipmentID: char.EquipmentID,
	}
	if len(char.Encyclopedia) > 0 {
		if err := json.Unmarshal(char.Encyclopedia, &p.Encyclopedia); err != nil {
			return nil, fmt.Errorf("profile: character %d encyclopedia: %w", charID, err)
		}
	}
	items := make([]inventory.Item, 0, len(itemRows))
	for _, r := range itemRows {
		it, err := rowToItem(r)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	hs, err := rowsToHideout(areaRows, impRows, prodRows)
	if err != nil {
		return nil, err
	}
	return assemble(p, s.catalog, items, hs)
}

// Save writes the profile header and replaces its item and hideout rows.
func (s *Store) Save(ctx context.Context, p *Profile) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		enc, err := json.Marshal(p.Encyclopedia)
		if err != nil {
			return err
		}
		res := tx.Model(&model.Character{}).Where("id = ?", p.CharID).Updates(map[string]any{
			"level":        p.Level,
			"encyclopedia": datatypes.JSON(enc),
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrCharacterNotFound
		}
		for _, m := range []any{&model.InventoryItem{}, &model.HideoutArea{}, &model.HideoutImprovement{}, &model.HideoutProduction{}} {
			if err := tx.Where("char_id = ?", p.CharID).Delete(m).Error; err != nil {
				return err
			}
		}
		return writeRows(tx, p)
	})
}

func writeRows(tx *gorm.DB, p *Profile) error {
	items := p.tree.Items()
	rows := make([]model.InventoryItem, 0, len(items))
	for _, it := range items {
		r, err := itemToRow(p.CharID, it)
		if err != nil {
			return err
		}
		rows = append(rows, r)
	}
	if len(rows) > 0 {
		if err := tx.CreateInBatches(&rows, saveBatchSize).Error; err != nil {
			return err
		}
	}

	areas, imps, prods, err := hideoutToRows(p.CharID, p.hideout)
	if err != nil {
		return err
	}
	if len(areas) > 0 {
		if err := tx.Create(&areas).Error; err != nil {
			return err
		}
	}
	if len(imps) > 0 {
		if err := tx.Create(&imps).Error; err != nil {
			return err
		}
	}
	if len(prods) > 0 {
		if err := tx.Create(&prods).Error; err != nil {
			return err
		}
	}
	return nil
}

func itemToRow(charID int64, it inventory.Item) (model.InventoryItem, error) {
	r := model.InventoryItem{
		CharID:     charID,
		ItemID:     it.ID,
		TemplateID: it.TemplateID,
		ParentID:   it.ParentID,
		SlotID:     it.SlotID,
		StackCount: it.StackCount,
	}
	if it.Location != nil {
		r.Spatial = true
		r.X, r.Y, r.R = it.Location.X, it.Location.Y, int(it.Location.R)
	}
	if len(it.Attributes) > 0 {
		b, err := json.Marshal(it.Attributes)
		if err != nil {
			return r, fmt.Errorf("profile: item %s attributes: %w", it.ID, err)
		}
		r.Attributes = b
	}
	return r, nil
}

func rowToItem(r model.InventoryItem) (inventory.Item, error) {
	it := inventory.Item{
		ID:         r.ItemID,
		TemplateID: r.TemplateID,
		ParentID:   r.ParentID,
		SlotID:     r.SlotID,
		StackCount: r.StackCount,
	}
	if r.Spatial {
		it.Location = &inventory.Location{X: r.X, Y: r.Y, R: inventory.Rotation(r.R)}
	}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &it.Attributes); err != nil {
			return it, fmt.Errorf("profile: item %s attributes: %w", r.ItemID, err)
		}
	}
	return it, nil
}

func hideoutToRows(charID int64, hs *hideout.State) ([]model.HideoutArea, []model.HideoutImprovement, []model.HideoutProduction, error) {
	var (
		areas []model.HideoutArea
		imps  []model.HideoutImprovement
		prods []model.HideoutProduction
	)
	for _, t := range hs.AreaTypes() {
		a := hs.Areas[t]
		slots, err := json.Marshal(a.Slots)
		if err != nil {
			return nil, nil, nil, err
		}
		areas = append(areas, model.HideoutArea{
			CharID:       charID,
			AreaType:     int(t),
			Level:        a.Level,
			CompleteTime: a.CompleteTime,
			Constructing: a.Constructing,
			Slots:        slots,
		})
		for id, imp := range a.Improvements {
			imps = append(imps, model.HideoutImprovement{
				CharID:        charID,
				ImprovementID: id,
				AreaType:      int(t),
				Completed:     imp.Completed,
				CompleteTime:  imp.CompleteTime,
			})
		}
	}
	for id, pr := range hs.Productions {
		row := model.HideoutProduction{
			CharID:         charID,
			RecipeID:       id,
			Progress:       pr.Progress,
			InProgress:     pr.InProgress,
			StartTimestamp: pr.StartTimestamp,
			ProductionTime: pr.ProductionTime,
			SkipTime:       pr.SkipTime,
		}
		if len(pr.Products) > 0 {
			b, err := json.Marshal(pr.Products)
			if err != nil {
				return nil, nil, nil, err
			}
			row.Products = b
		}
		prods = append(prods, row)
	}
	return areas, imps, prods, nil
}

func rowsToHideout(areas []model.HideoutArea, imps []model.HideoutImprovement, prods []model.HideoutProduction) (*hideout.State, error) {
	hs := &hideout.State{
		Areas:       make(map[hideout.AreaType]*hideout.Area, len(areas)),
		Productions: make(map[string]*hideout.Production, len(prods)),
	}
	for _, r := range areas {
		a := &hideout.Area{
			Type:         hideout.AreaType(r.AreaType),
			Level:        r.Level,
			CompleteTime: r.CompleteTime,
			Constructing: r.Constructing,
		}
		if len(r.Slots) > 0 {
			if err := json.Unmarshal(r.Slots, &a.Slots); err != nil {
				return nil, fmt.Errorf("profile: area %d slots: %w", r.AreaType, err)
			}
		}
		hs.Areas[a.Type] = a
	}
	for _, r := range imps {
		a, ok := hs.Areas[hideout.AreaType(r.AreaType)]
		if !ok {
			continue
		}
		if a.Improvements == nil {
			a.Improvements = make(map[string]*hideout.Improvement)
		}
		a.Improvements[r.ImprovementID] = &hideout.Improvement{Completed: r.Completed, CompleteTime: r.CompleteTime}
	}
	for _, r := range prods {
		pr := &hideout.Production{
			RecipeID:       r.RecipeID,
			Progress:       r.Progress,
			InProgress:     r.InProgress,
			StartTimestamp: r.StartTimestamp,
			ProductionTime: r.ProductionTime,
			SkipTime:       r.SkipTime,
		}
		if len(r.Products) > 0 {
			if err := json.Unmarshal(r.Products, &pr.Products); err != nil {
				return nil, fmt.Errorf("profile: production %s products: %w", r.RecipeID, err)
			}
		}
		hs.Productions[r.RecipeID] = pr
	}
	return hs, nil
}
