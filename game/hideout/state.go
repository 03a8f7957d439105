package hideout

import (
	"fmt"
	"maps"
	"sort"
	"strconv"

	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
)

// AreaType identifies a hideout area. Values follow the client numbering.
type AreaType int

const (
	AreaVents AreaType = iota
	AreaSecurity
	AreaLavatory
	AreaStash
	AreaGenerator
	AreaHeating
	AreaWaterCollector
	AreaMedStation
	AreaKitchen
	AreaRestSpace
	AreaWorkbench
	AreaIntelligenceCenter
	AreaShootingRange
	AreaLibrary
	AreaScavCase
	AreaIllumination
	AreaPlaceOfFame
	AreaAirFilteringUnit
	AreaSolarPower
	AreaBoozeGenerator
	AreaBitcoinFarm
	AreaChristmasTree
)

var areaNames = [...]string{
	"Vents", "Security", "Lavatory", "Stash", "Generator", "Heating",
	"WaterCollector", "MedStation", "Kitchen", "RestSpace", "Workbench",
	"IntelligenceCenter", "ShootingRange", "Library", "ScavCase",
	"Illumination", "PlaceOfFame", "AirFilteringUnit", "SolarPower",
	"BoozeGenerator", "BitcoinFarm", "ChristmasTree",
}

func (t AreaType) String() string {
	if t >= 0 && int(t) < len(areaNames) {
		return areaNames[t]
	}
	return "Area(" + strconv.Itoa(int(t)) + ")"
}

// AreaContainerID is the virtual container that holds the items slotted into
// an area. Slotted items stay in the character's inventory tree.
func AreaContainerID(t AreaType) string {
	return fmt.Sprintf("hideout-area-%d", int(t))
}

// SlotRef addresses slot index of an area.
func SlotRef(t AreaType, index int) inventory.ContainerRef {
	return inventory.ContainerRef{ParentID: AreaContainerID(t), SlotID: strconv.Itoa(index)}
}

// SlotStub mirrors the item sitting in an area slot. The inventory tree is
// authoritative; stubs are rebuilt from it.
type SlotStub struct {
	ID         string         `json:"_id"`
	TemplateID string         `json:"_tpl"`
	Attributes map[string]any `json:"upd,omitempty"`
}

// Improvement is a timed bonus of an area.
type Improvement struct {
	Completed    bool  `json:"completed"`
	CompleteTime int64 `json:"improveCompleteTimestamp"`
}

// Area is the per-character state of one hideout area.
type Area struct {
	Type         AreaType                `json:"type"`
	Level        int                     `json:"level"`
	CompleteTime int64                   `json:"completeTime"`
	Constructing bool                    `json:"constructing"`
	Slots        []*SlotStub             `json:"slots"`
	Improvements map[string]*Improvement `json:"improvements,omitempty"`
}

// Production is the per-character state of one recipe.
type Production struct {
	RecipeID       string           `json:"RecipeId"`
	Progress       int64            `json:"Progress"`
	InProgress     bool             `json:"inProgress"`
	Products       []inventory.Item `json:"Products"`
	StartTimestamp int64            `json:"StartTimestamp"`
	ProductionTime int64            `json:"ProductionTime"`
	SkipTime       int64            `json:"SkipTime"`
}

// DueAt is the epoch second at which the production may be collected.
func (p *Production) DueAt() int64 {
	return p.StartTimestamp + p.ProductionTime - p.SkipTime
}

func (p *Production) reset() {
	p.Progress = 0
	p.InProgress = false
	p.Products = nil
	p.StartTimestamp = 0
	p.SkipTime = 0
}

// State holds every area and production entry of one character. Entries are
// created once and reset to idle, never deleted.
type State struct {
	Areas       map[AreaType]*Area     `json:"areas"`
	Productions map[string]*Production `json:"production"`
}

// NewState creates one idle area per catalog area and one idle production
// entry per recipe.
func NewState(c Catalog) *State {
	s := &State{
		Areas:       make(map[AreaType]*Area),
		Productions: make(map[string]*Production),
	}
	for _, def := range c.Areas() {
		t := AreaType(def.Type)
		s.Areas[t] = &Area{Type: t, Slots: make([]*SlotStub, def.Slots)}
	}
	for _, r := range c.Recipes() {
		s.Productions[r.ID] = &Production{RecipeID: r.ID, ProductionTime: r.ProductionTime}
	}
	return s
}

// Sync adds idle entries for catalog areas and recipes the state does not
// have yet and grows slot lists to the catalog size. Existing entries are
// kept as they are.
func (s *State) Sync(c Catalog) {
	fresh := NewState(c)
	for t, a := range fresh.Areas {
		cur, ok := s.Areas[t]
		if !ok {
			s.Areas[t] = a
			continue
		}
		for len(cur.Slots) < len(a.Slots) {
			cur.Slots = append(cur.Slots, nil)
		}
	}
	for id, p := range fresh.Productions {
		if _, ok := s.Productions[id]; !ok {
			s.Productions[id] = p
		}
	}
}

// AreaTypes returns the area types in ascending order.
func (s *State) AreaTypes() []AreaType {
	out := make([]AreaType, 0, len(s.Areas))
	for t := range s.Areas {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// VirtualContainers lists the containers the inventory tree must accept as
// parents of slotted items, one per area, sized to the area's slots.
func (s *State) VirtualContainers() []inventory.VirtualContainer {
	types := s.AreaTypes()
	out := make([]inventory.VirtualContainer, 0, len(types))
	for _, t := range types {
		out = append(out, inventory.VirtualContainer{ID: AreaContainerID(t), Slots: len(s.Areas[t].Slots)})
	}
	return out
}

// SyncSlots rebuilds every area's slot stubs from the items tree holds
// under the area containers.
func (s *State) SyncSlots(tree *inventory.Tree) {
	for _, a := range s.Areas {
		a.syncSlots(tree)
	}
}

func (a *Area) syncSlots(tree *inventory.Tree) {
	clear(a.Slots)
	for _, it := range tree.Children(AreaContainerID(a.Type)) {
		i, err := strconv.Atoi(it.SlotID)
		if err != nil || i < 0 || i >= len(a.Slots) {
			continue
		}
		a.Slots[i] = &SlotStub{ID: it.ID, TemplateID: it.TemplateID, Attributes: it.Attributes}
	}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	out := &State{
		Areas:       make(map[AreaType]*Area, len(s.Areas)),
		Productions: make(map[string]*Production, len(s.Productions)),
	}
	for t, a := range s.Areas {
		c := *a
		c.Slots = make([]*SlotStub, len(a.Slots))
		for i, st := range a.Slots {
			if st != nil {
				cp := *st
				cp.Attributes = maps.Clone(st.Attributes)
				c.Slots[i] = &cp
			}
		}
		if a.Improvements != nil {
			c.Improvements = make(map[string]*Improvement, len(a.Improvements))
			for id, imp := range a.Improvements {
				cp := *imp
				c.Improvements[id] = &cp
			}
		}
		out.Areas[t] = &c
	}
	for id, p := range s.Productions {
		c := *p
		if p.Products != nil {
			c.Products = make([]inventory.Item, len(p.Products))
			for i, it := range p.Products {
				c.Products[i] = it.Clone()
			}
		}
		out.Productions[id] = &c
	}
	return out
}
