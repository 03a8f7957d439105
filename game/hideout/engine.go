package hideout

import (
	"fmt"
	"sort"
	"time"

	"github.com/IBigIBruce/MTGA-Backend/catalog"
	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
)

// Catalog is the static data the engine reads. It is never mutated.
type Catalog interface {
	inventory.Templates
	Area(areaType int) (catalog.AreaDef, bool)
	Recipe(id string) (catalog.RecipeDef, bool)
	Areas() []catalog.AreaDef
	Recipes() []catalog.RecipeDef
}

// Character is the mutable unit the engine works on. Callers must hold the
// character's exclusive lock for every engine call that takes a ChangeSet.
type Character interface {
	Inventory() *inventory.Tree
	Hideout() *State
}

// Engine drives area upgrades, improvements, slots and productions. It holds
// no per-character state and does no I/O. All timers are absolute epoch
// seconds compared against the engine clock when a call is made.
type Engine struct {
	catalog Catalog
	now     func() time.Time
	newID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(fn func() time.Time) Option {
	return func(e *Engine) { e.now = fn }
}

// WithIDGenerator replaces the id generator used for pending products.
func WithIDGenerator(fn func() string) Option {
	return func(e *Engine) { e.newID = fn }
}

// NewEngine creates an Engine over c.
func NewEngine(c Catalog, opts ...Option) *Engine {
	e := &Engine{catalog: c, now: time.Now, newID: inventory.NewItemID}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Now returns the engine clock in epoch seconds.
func (e *Engine) Now() int64 { return e.now().Unix() }

func (e *Engine) area(ch Character, t AreaType) (*Area, catalog.AreaDef, error) {
	def, ok := e.catalog.Area(int(t))
	if !ok {
		return nil, catalog.AreaDef{}, fmt.Errorf("%w: %s", ErrUnknownArea, t)
	}
	a, ok := ch.Hideout().Areas[t]
	if !ok {
		return nil, catalog.AreaDef{}, fmt.Errorf("%w: %s not unlocked for character", ErrUnknownArea, t)
	}
	return a, def, nil
}

// ---- Area upgrades ----

// StartUpgrade pays for the next stage of an area and starts its
// construction timer.
func (e *Engine) StartUpgrade(ch Character, t AreaType, paid []inventory.RemoveRequest, cs *inventory.ChangeSet) error {
	a, def, err := e.area(ch, t)
	if err != nil {
		return err
	}
	if a.Constructing {
		return fmt.Errorf("%w: %s", ErrAlreadyConstructing, t)
	}
	stage, ok := def.Stage(a.Level + 1)
	if !ok {
		return fmt.Errorf("%w: %s at level %d", ErrNoNextStage, t, a.Level)
	}
	if err := e.pay(ch.Inventory(), stage.RequiredItems, paid, cs); err != nil {
		return err
	}
	a.Constructing = true
	a.CompleteTime = e.Now() + stage.ConstructionTime
	cs.MarkHideout()
	return nil
}

// CompleteUpgrade finishes a construction whose timer has passed. Called
// early it returns ErrNotYetDue and changes nothing.
func (e *Engine) CompleteUpgrade(ch Character, t AreaType, cs *inventory.ChangeSet) error {
	a, def, err := e.area(ch, t)
	if err != nil {
		return err
	}
	if !a.Constructing {
		return fmt.Errorf("%w: %s", ErrNotConstructing, t)
	}
	if _, ok := def.Stage(a.Level + 1); !ok {
		return fmt.Errorf("%w: %s at level %d", ErrNoNextStage, t, a.Level)
	}
	if now := e.Now(); now < a.CompleteTime {
		return fmt.Errorf("%w: %s completes at %d, now %d", ErrNotYetDue, t, a.CompleteTime, now)
	}
	a.Level++
	a.CompleteTime = 0
	a.Constructing = false
	if len(a.Slots) < def.Slots {
		a.Slots = append(a.Slots, make([]*SlotStub, def.Slots-len(a.Slots))...)
	}
	cs.MarkHideout()
	return nil
}

// ---- Improvements ----

// ImproveArea pays for the improvements granted by the area's next stage and
// starts one timer per improvement. The level does not change.
func (e *Engine) ImproveArea(ch Character, t AreaType, paid []inventory.RemoveRequest, cs *inventory.ChangeSet) ([]string, error) {
	a, def, err := e.area(ch, t)
	if err != nil {
		return nil, err
	}
	stage, ok := def.Stage(a.Level + 1)
	if !ok {
		return nil, fmt.Errorf("%w: %s at level %d", ErrNoNextStage, t, a.Level)
	}
	var (
		pending  []catalog.ImprovementDef
		required []catalog.ItemCount
	)
	for _, imp := range stage.Improvements {
		if _, started := a.Improvements[imp.ID]; started {
			continue
		}
		pending = append(pending, imp)
		required = append(required, imp.RequiredItems...)
	}
	if len(pending) == 0 {
		return nil, fmt.Errorf("%w: %s level %d", ErrNoImprovements, t, a.Level+1)
	}
	if err := e.pay(ch.Inventory(), required, paid, cs); err != nil {
		return nil, err
	}
	if a.Improvements == nil {
		a.Improvements = make(map[string]*Improvement, len(pending))
	}
	now := e.Now()
	ids := make([]string, 0, len(pending))
	for _, imp := range pending {
		a.Improvements[imp.ID] = &Improvement{CompleteTime: now + imp.ImprovementTime}
		ids = append(ids, imp.ID)
	}
	cs.MarkHideout()
	return ids, nil
}

// CompleteDueImprovements marks every improvement whose timer has passed and
// returns their ids.
func (e *Engine) CompleteDueImprovements(ch Character, cs *inventory.ChangeSet) []string {
	now := e.Now()
	var done []string
	for _, a := range ch.Hideout().Areas {
		for id, imp := range a.Improvements {
			if !imp.Completed && now >= imp.CompleteTime {
				imp.Completed = true
				done = append(done, id)
			}
		}
	}
	if len(done) > 0 {
		sort.Strings(done)
		cs.MarkHideout()
	}
	return done
}

// ---- Area slots ----

func slotIndex(a *Area, index int) error {
	if index < 0 || index >= len(a.Slots) {
		return fmt.Errorf("%w: %s has %d slots, got %d", ErrInvalidSlot, a.Type, len(a.Slots), index)
	}
	return nil
}

// AddItemToSlot moves an inventory item into an area slot. The item stays in
// the character's tree under the area's virtual container.
func (e *Engine) AddItemToSlot(ch Character, t AreaType, index int, itemID string, cs *inventory.ChangeSet) error {
	a, _, err := e.area(ch, t)
	if err != nil {
		return err
	}
	if err := slotIndex(a, index); err != nil {
		return err
	}
	tree := ch.Inventory()
	tree.RegisterVirtual(inventory.VirtualContainer{ID: AreaContainerID(t), Slots: len(a.Slots)})
	a.syncSlots(tree)
	if st := a.Slots[index]; st != nil {
		return fmt.Errorf("%w: %s slot %d holds %s", inventory.ErrSlotOccupied, t, index, st.ID)
	}
	if err := tree.SlotItem(itemID, SlotRef(t, index), cs); err != nil {
		return err
	}
	a.syncSlots(tree)
	cs.MarkHideout()
	return nil
}

// TakeItemFromSlot moves the item in an area slot back to the first free
// place in the stash.
func (e *Engine) TakeItemFromSlot(ch Character, t AreaType, index int, cs *inventory.ChangeSet) (inventory.Item, error) {
	a, _, err := e.area(ch, t)
	if err != nil {
		return inventory.Item{}, err
	}
	if err := slotIndex(a, index); err != nil {
		return inventory.Item{}, err
	}
	tree := ch.Inventory()
	a.syncSlots(tree)
	st := a.Slots[index]
	if st == nil {
		return inventory.Item{}, fmt.Errorf("%w: %s slot %d", ErrSlotEmpty, t, index)
	}
	if err := tree.UnslotItem(st.ID, SlotRef(t, index), tree.StashRef(), nil, cs); err != nil {
		return inventory.Item{}, err
	}
	a.syncSlots(tree)
	cs.MarkHideout()
	return tree.Get(st.ID)
}

// ---- Production ----

// StartProduction pays the recipe inputs and starts its timer. The products
// are materialized now as pending records and enter the tree on completion.
func (e *Engine) StartProduction(ch Character, recipeID string, paid []inventory.RemoveRequest, cs *inventory.ChangeSet) error {
	r, ok := e.catalog.Recipe(recipeID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecipe, recipeID)
	}
	st := ch.Hideout()
	p, ok := st.Productions[recipeID]
	if !ok {
		p = &Production{RecipeID: recipeID}
		st.Productions[recipeID] = p
	}
	if p.InProgress {
		return fmt.Errorf("%w: %s", ErrProductionInProgress, recipeID)
	}
	products, err := e.materialize(r)
	if err != nil {
		return err
	}
	if err := e.pay(ch.Inventory(), r.RequiredItems, paid, cs); err != nil {
		return err
	}
	p.reset()
	p.InProgress = true
	p.Products = products
	p.ProductionTime = r.ProductionTime
	p.StartTimestamp = e.Now()
	cs.MarkHideout()
	return nil
}

func (e *Engine) materialize(r catalog.RecipeDef) ([]inventory.Item, error) {
	tpl, ok := e.catalog.Template(r.EndProduct)
	if !ok {
		return nil, fmt.Errorf("%w: %s", inventory.ErrUnknownTemplate, r.EndProduct)
	}
	count := r.Count
	if count < 1 {
		count = 1
	}
	if tpl.Stackable {
		return []inventory.Item{{ID: e.newID(), TemplateID: r.EndProduct, StackCount: count}}, nil
	}
	out := make([]inventory.Item, count)
	for i := range out {
		out[i] = inventory.Item{ID: e.newID(), TemplateID: r.EndProduct}
	}
	return out, nil
}

// FastForwardProduction shortens the remaining wait of a running production
// by seconds. Skip time never exceeds the production time.
func (e *Engine) FastForwardProduction(ch Character, recipeID string, seconds int64, cs *inventory.ChangeSet) error {
	if _, ok := e.catalog.Recipe(recipeID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownRecipe, recipeID)
	}
	p, ok := ch.Hideout().Productions[recipeID]
	if !ok || !p.InProgress {
		return fmt.Errorf("%w: %s", ErrNotInProgress, recipeID)
	}
	if seconds <= 0 {
		return fmt.Errorf("%w: %d seconds", ErrInvalidDuration, seconds)
	}
	p.SkipTime = min(p.SkipTime+seconds, p.ProductionTime)
	cs.MarkHideout()
	return nil
}

// CompleteProduction moves the pending products into the stash and resets
// the entry. Either every product is placed or none is.
func (e *Engine) CompleteProduction(ch Character, recipeID string, cs *inventory.ChangeSet) ([]inventory.Item, error) {
	if _, ok := e.catalog.Recipe(recipeID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownRecipe, recipeID)
	}
	p, ok := ch.Hideout().Productions[recipeID]
	if !ok || !p.InProgress {
		return nil, fmt.Errorf("%w: %s", ErrNotInProgress, recipeID)
	}
	if now := e.Now(); now < p.DueAt() {
		return nil, fmt.Errorf("%w: %s due at %d, now %d", ErrNotYetDue, recipeID, p.DueAt(), now)
	}
	tree := ch.Inventory()
	added, err := tree.AddItems(tree.StashRef(), p.Products, cs)
	if err != nil {
		return nil, err
	}
	p.reset()
	cs.MarkHideout()
	return added, nil
}

// Overview returns a copy of the state with production progress brought up
// to the engine clock. The input is not modified.
func (e *Engine) Overview(s *State) *State {
	out := s.Clone()
	now := e.Now()
	for _, p := range out.Productions {
		if !p.InProgress {
			continue
		}
		p.Progress = max(0, min(now-p.StartTimestamp+p.SkipTime, p.ProductionTime))
	}
	return out
}

// pay checks that paid covers required and removes exactly the paid
// quantities. Nothing is removed unless every check passes.
func (e *Engine) pay(tree *inventory.Tree, required []catalog.ItemCount, paid []inventory.RemoveRequest, cs *inventory.ChangeSet) error {
	if err := tree.CanRemove(paid); err != nil {
		return fmt.Errorf("%w: %w", ErrItemsUnavailable, err)
	}
	supplied := make(map[string]int)
	for _, p := range paid {
		it, err := tree.Get(p.ID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrItemsUnavailable, err)
		}
		n := p.Count
		if n == 0 {
			n = it.Count()
		}
		supplied[it.TemplateID] += n
	}
	need := make(map[string]int)
	var order []string
	for _, r := range required {
		if _, seen := need[r.TemplateID]; !seen {
			order = append(order, r.TemplateID)
		}
		need[r.TemplateID] += r.Count
	}
	for _, tpl := range order {
		if supplied[tpl] < need[tpl] {
			return fmt.Errorf("%w: %s needs %d, paid %d", ErrItemsUnavailable, tpl, need[tpl], supplied[tpl])
		}
	}
	if len(paid) == 0 {
		return nil
	}
	if _, err := tree.RemoveItems(paid, cs); err != nil {
		return fmt.Errorf("%w: %w", ErrItemsUnavailable, err)
	}
	return nil
}
