package catalog

import (
	"fmt"
	"sort"

	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
)

// ---- Static data structures ----

// ItemCount is a template id with a quantity.
type ItemCount struct {
	TemplateID string `json:"templateId"`
	Count      int    `json:"count"`
}

// GridDef is a spatial area of a container template.
type GridDef struct {
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// ItemTemplate describes one item kind.
type ItemTemplate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Stackable bool      `json:"stackable"`
	MaxStack  int       `json:"maxStack"`
	Grids     []GridDef `json:"grids"`
	Slots     []string  `json:"slots"`
}

// ImprovementDef is a timed bonus unlocked by an area stage.
type ImprovementDef struct {
	ID              string      `json:"id"`
	ImprovementTime int64       `json:"improvementTime"`
	RequiredItems   []ItemCount `json:"requiredItems"`
}

// StageDef is one level of a hideout area.
type StageDef struct {
	Level            int              `json:"level"`
	ConstructionTime int64            `json:"constructionTime"`
	RequiredItems    []ItemCount      `json:"requiredItems"`
	Improvements     []ImprovementDef `json:"improvements"`
}

// AreaDef is a hideout area and its stages, indexed by level.
type AreaDef struct {
	Type   int        `json:"type"`
	Name   string     `json:"name"`
	Slots  int        `json:"slots"`
	Stages []StageDef `json:"stages"`
}

// Stage returns the stage for level.
func (a AreaDef) Stage(level int) (StageDef, bool) {
	if level < 0 || level >= len(a.Stages) {
		return StageDef{}, false
	}
	return a.Stages[level], true
}

// RecipeDef is a hideout production recipe.
type RecipeDef struct {
	ID             string      `json:"id"`
	AreaType       int         `json:"areaType"`
	ProductionTime int64       `json:"productionTime"`
	EndProduct     string      `json:"endProduct"`
	Count          int         `json:"count"`
	RequiredItems  []ItemCount `json:"requiredItems"`
}

// Catalog is the read-only lookup over all static data. It is never mutated
// after construction and is safe for concurrent use.
type Catalog struct {
	items   map[string]ItemTemplate
	areas   map[int]AreaDef
	recipes map[string]RecipeDef

	areaOrder   []int
	recipeOrder []string
}

// New validates the given definitions and builds a Catalog.
func New(items []ItemTemplate, areas []AreaDef, recipes []RecipeDef) (*Catalog, error) {
	c := &Catalog{
		items:   make(map[string]ItemTemplate, len(items)),
		areas:   make(map[int]AreaDef, len(areas)),
		recipes: make(map[string]RecipeDef, len(recipes)),
	}
	for _, it := range items {
		if err := validateItem(it); err != nil {
			return nil, err
		}
		if _, dup := c.items[it.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate item %q", it.ID)
		}
		c.items[it.ID] = it
	}

	improvements := map[string]bool{}
	for _, a := range areas {
		if _, dup := c.areas[a.Type]; dup {
			return nil, fmt.Errorf("catalog: duplicate area type %d", a.Type)
		}
		if a.Slots < 0 {
			return nil, fmt.Errorf("catalog: area %d: negative slot count", a.Type)
		}
		for i, st := range a.Stages {
			if st.Level != i {
				return nil, fmt.Errorf("catalog: area %d: stage %d declares level %d", a.Type, i, st.Level)
			}
			if st.ConstructionTime < 0 {
				return nil, fmt.Errorf("catalog: area %d stage %d: negative construction time", a.Type, i)
			}
			if err := c.checkCounts(st.RequiredItems); err != nil {
				return nil, fmt.Errorf("catalog: area %d stage %d: %w", a.Type, i, err)
			}
			for _, imp := range st.Improvements {
				if imp.ID == "" || improvements[imp.ID] {
					return nil, fmt.Errorf("catalog: area %d stage %d: bad or duplicate improvement %q", a.Type, i, imp.ID)
				}
				improvements[imp.ID] = true
				if err := c.checkCounts(imp.RequiredItems); err != nil {
					return nil, fmt.Errorf("catalog: improvement %s: %w", imp.ID, err)
				}
			}
		}
		c.areas[a.Type] = a
		c.areaOrder = append(c.areaOrder, a.Type)
	}

	for _, r := range recipes {
		if r.ID == "" {
			return nil, fmt.Errorf("catalog: recipe without id")
		}
		if _, dup := c.recipes[r.ID]; dup {
			return nil, fmt.Errorf("catalog: duplicate recipe %q", r.ID)
		}
		if _, ok := c.items[r.EndProduct]; !ok {
			return nil, fmt.Errorf("catalog: recipe %s: unknown product %q", r.ID, r.EndProduct)
		}
		if _, ok := c.areas[r.AreaType]; !ok {
			return nil, fmt.Errorf("catalog: recipe %s: unknown area %d", r.ID, r.AreaType)
		}
		if r.ProductionTime < 0 {
			return nil, fmt.Errorf("catalog: recipe %s: negative production time", r.ID)
		}
		if r.Count <= 0 {
			r.Count = 1
		}
		if err := c.checkCounts(r.RequiredItems); err != nil {
			return nil, fmt.Errorf("catalog: recipe %s: %w", r.ID, err)
		}
		c.recipes[r.ID] = r
		c.recipeOrder = append(c.recipeOrder, r.ID)
	}
	sort.Ints(c.areaOrder)
	sort.Strings(c.recipeOrder)
	return c, nil
}

func validateItem(it ItemTemplate) error {
	if it.ID == "" {
		return fmt.Errorf("catalog: item without id")
	}
	if it.Width < 1 || it.Height < 1 {
		return fmt.Errorf("catalog: item %s: footprint %dx%d", it.ID, it.Width, it.Height)
	}
	seen := map[string]bool{}
	for _, g := range it.Grids {
		if g.Name == "" || g.Width < 1 || g.Height < 1 || seen[g.Name] {
			return fmt.Errorf("catalog: item %s: bad grid %q", it.ID, g.Name)
		}
		seen[g.Name] = true
	}
	for _, s := range it.Slots {
		if s == "" || seen[s] {
			return fmt.Errorf("catalog: item %s: bad slot %q", it.ID, s)
		}
		seen[s] = true
	}
	return nil
}

func (c *Catalog) checkCounts(counts []ItemCount) error {
	for _, ic := range counts {
		if _, ok := c.items[ic.TemplateID]; !ok {
			return fmt.Errorf("unknown item %q", ic.TemplateID)
		}
		if ic.Count < 1 {
			return fmt.Errorf("item %s: count %d", ic.TemplateID, ic.Count)
		}
	}
	return nil
}

// ---- Lookups ----

// Item returns the raw template definition.
func (c *Catalog) Item(id string) (ItemTemplate, bool) {
	it, ok := c.items[id]
	return it, ok
}

// Template implements inventory.Templates.
func (c *Catalog) Template(id string) (inventory.Template, bool) {
	it, ok := c.items[id]
	if !ok {
		return inventory.Template{}, false
	}
	tpl := inventory.Template{
		ID:        it.ID,
		Size:      inventory.Footprint{Width: it.Width, Height: it.Height},
		Stackable: it.Stackable,
		Slots:     it.Slots,
	}
	for _, g := range it.Grids {
		tpl.Grids = append(tpl.Grids, inventory.GridSpec{
			Name: g.Name,
			Size: inventory.Footprint{Width: g.Width, Height: g.Height},
		})
	}
	return tpl, true
}

// Area returns the definition of an area type.
func (c *Catalog) Area(areaType int) (AreaDef, bool) {
	a, ok := c.areas[areaType]
	return a, ok
}

// Areas returns every area ordered by type.
func (c *Catalog) Areas() []AreaDef {
	out := make([]AreaDef, 0, len(c.areaOrder))
	for _, t := range c.areaOrder {
		out = append(out, c.areas[t])
	}
	return out
}

// Recipe returns a production recipe.
func (c *Catalog) Recipe(id string) (RecipeDef, bool) {
	r, ok := c.recipes[id]
	return r, ok
}

// Recipes returns every recipe ordered by id.
func (c *Catalog) Recipes() []RecipeDef {
	out := make([]RecipeDef, 0, len(c.recipeOrder))
	for _, id := range c.recipeOrder {
		out = append(out, c.recipes[id])
	}
	return out
}

// Counts reports the number of loaded definitions.
func (c *Catalog) Counts() (items, areas, recipes int) {
	return len(c.items), len(c.areas), len(c.recipes)
}
