package inventory

import "errors"

var (
	ErrNotFound          = errors.New("inventory: item not found")
	ErrInvalidContainer  = errors.New("inventory: invalid container")
	ErrInvalidTarget     = errors.New("inventory: invalid target")
	ErrCollision         = errors.New("inventory: placement collides with another item")
	ErrNoSpace           = errors.New("inventory: no free space in container")
	ErrSlotOccupied      = errors.New("inventory: slot occupied")
	ErrInsufficientCount = errors.New("inventory: insufficient count")
	ErrNotStackable      = errors.New("inventory: item is not stackable")
	ErrTemplateMismatch  = errors.New("inventory: item templates differ")
	ErrCountOutOfRange   = errors.New("inventory: count out of range")
	ErrUnknownTemplate   = errors.New("inventory: unknown item template")
	ErrCorrupt           = errors.New("inventory: corrupt item tree")
	ErrSlotted           = errors.New("inventory: item is held in an area slot")
)

func isContainerErr(err error) bool {
	return errors.Is(err, ErrInvalidContainer)
}
