package rest

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/IBigIBruce/MTGA-Backend/game/hideout"
	"github.com/IBigIBruce/MTGA-Backend/game/inventory"
	"github.com/IBigIBruce/MTGA-Backend/game/profile"
)

// containerTarget is the client's {id, container, location} triple.
type containerTarget struct {
	ID        string              `json:"id"`
	Container string              `json:"container"`
	Location  *inventory.Location `json:"location,omitempty"`
}

func (t containerTarget) ref() inventory.ContainerRef {
	return inventory.ContainerRef{ParentID: t.ID, SlotID: t.Container}
}

type paidItem struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

func removeRequests(items []paidItem) []inventory.RemoveRequest {
	out := make([]inventory.RemoveRequest, len(items))
	for i, it := range items {
		out[i] = inventory.RemoveRequest{ID: it.ID, Count: it.Count}
	}
	return out
}

type moveAction struct {
	Item string          `json:"item"`
	To   containerTarget `json:"to"`
}

type splitAction struct {
	Item      string          `json:"item"`
	Container containerTarget `json:"container"`
	Count     int             `json:"count"`
}

type mergeAction struct {
	Item string `json:"item"`
	With string `json:"with"`
}

type removeAction struct {
	Item  string `json:"item"`
	Count int    `json:"count"`
}

type examineAction struct {
	Item string `json:"item"`
}

type areaPaymentAction struct {
	AreaType int        `json:"areaType"`
	Items    []paidItem `json:"items"`
}

type areaAction struct {
	AreaType int `json:"areaType"`
}

type putInSlotsAction struct {
	AreaType int                 `json:"areaType"`
	Items    map[string]paidItem `json:"items"`
}

type takeFromSlotsAction struct {
	AreaType int   `json:"areaType"`
	Slots    []int `json:"slots"`
}

type productionStartAction struct {
	RecipeID string     `json:"recipeId"`
	Items    []paidItem `json:"items"`
}

type fastForwardAction struct {
	RecipeID string `json:"recipeId"`
	Seconds  int64  `json:"seconds"`
}

type recipeAction struct {
	RecipeID string `json:"recipeId"`
}

// actionContext is what one action sees: the locked profile, the engine and
// the batch ChangeSet.
type actionContext struct {
	p      *profile.Profile
	engine *hideout.Engine
	cs     *inventory.ChangeSet
}

type actionFunc func(ac *actionContext, raw json.RawMessage) error

// typed binds a decoder for T to its handler.
func typed[T any](fn func(*actionContext, T) error) actionFunc {
	return func(ac *actionContext, raw json.RawMessage) error {
		var req T
		if err := json.Unmarshal(raw, &req); err != nil {
			return fmt.Errorf("%w: %v", errBadRequest, err)
		}
		return fn(ac, req)
	}
}

var actionTable = map[string]actionFunc{
	"Move":    typed(doMove),
	"Split":   typed(doSplit),
	"Merge":   typed(doMerge),
	"Remove":  typed(doRemove),
	"Examine": typed(doExamine),

	"HideoutUpgrade":                typed(doUpgrade),
	"HideoutUpgradeComplete":        typed(doUpgradeComplete),
	"HideoutImproveArea":            typed(doImprove),
	"HideoutPutItemsInAreaSlots":    typed(doPutInSlots),
	"HideoutTakeItemsFromAreaSlots": typed(doTakeFromSlots),
	"HideoutSingleProductionStart":  typed(doProductionStart),
	"HideoutFastForward":            typed(doFastForward),
	"HideoutTakeProduction":         typed(doTakeProduction),
}

func requireItem(id string) error {
	if id == "" {
		return fmt.Errorf("%w: missing item id", errBadRequest)
	}
	return nil
}

func doMove(ac *actionContext, a moveAction) error {
	if err := requireItem(a.Item); err != nil {
		return err
	}
	return ac.p.Inventory().MoveItem(a.Item, a.To.ref(), a.To.Location, ac.cs)
}

func doSplit(ac *actionContext, a splitAction) error {
	if err := requireItem(a.Item); err != nil {
		return err
	}
	_, err := ac.p.Inventory().SplitItem(a.Item, a.Count, a.Container.ref(), a.Container.Location, ac.cs)
	return err
}

func doMerge(ac *actionContext, a mergeAction) error {
	if err := requireItem(a.Item); err != nil {
		return err
	}
	return ac.p.Inventory().MergeItem(a.Item, a.With, ac.cs)
}

func doRemove(ac *actionContext, a removeAction) error {
	if err := requireItem(a.Item); err != nil {
		return err
	}
	_, err := ac.p.Inventory().RemoveItem(a.Item, a.Count, ac.cs)
	return err
}

func doExamine(ac *actionContext, a examineAction) error {
	if err := requireItem(a.Item); err != nil {
		return err
	}
	_, err := ac.p.Examine(a.Item)
	return err
}

func doUpgrade(ac *actionContext, a areaPaymentAction) error {
	return ac.engine.StartUpgrade(ac.p, hideout.AreaType(a.AreaType), removeRequests(a.Items), ac.cs)
}

func doUpgradeComplete(ac *actionContext, a areaAction) error {
	return ac.engine.CompleteUpgrade(ac.p, hideout.AreaType(a.AreaType), ac.cs)
}

func doImprove(ac *actionContext, a areaPaymentAction) error {
	_, err := ac.engine.ImproveArea(ac.p, hideout.AreaType(a.AreaType), removeRequests(a.Items), ac.cs)
	return err
}

// doPutInSlots fills slots in ascending index order. Each slot move is
// atomic; a failure stops at that slot.
func doPutInSlots(ac *actionContext, a putInSlotsAction) error {
	indices := make([]int, 0, len(a.Items))
	byIndex := make(map[int]string, len(a.Items))
	for k, it := range a.Items {
		i, err := strconv.Atoi(k)
		if err != nil {
			return fmt.Errorf("%w: slot %q", errBadRequest, k)
		}
		if err := requireItem(it.ID); err != nil {
			return err
		}
		indices = append(indices, i)
		byIndex[i] = it.ID
	}
	sort.Ints(indices)
	for _, i := range indices {
		if err := ac.engine.AddItemToSlot(ac.p, hideout.AreaType(a.AreaType), i, byIndex[i], ac.cs); err != nil {
			return err
		}
	}
	return nil
}

func doTakeFromSlots(ac *actionContext, a takeFromSlotsAction) error {
	for _, i := range a.Slots {
		if _, err := ac.engine.TakeItemFromSlot(ac.p, hideout.AreaType(a.AreaType), i, ac.cs); err != nil {
			return err
		}
	}
	return nil
}

func doProductionStart(ac *actionContext, a productionStartAction) error {
	return ac.engine.StartProduction(ac.p, a.RecipeID, removeRequests(a.Items), ac.cs)
}

func doFastForward(ac *actionContext, a fastForwardAction) error {
	return ac.engine.FastForwardProduction(ac.p, a.RecipeID, a.Seconds, ac.cs)
}

func doTakeProduction(ac *actionContext, a recipeAction) error {
	_, err := ac.engine.CompleteProduction(ac.p, a.RecipeID, ac.cs)
	return err
}
