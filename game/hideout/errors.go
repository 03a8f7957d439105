package hideout

import "errors"

var (
	ErrUnknownArea          = errors.New("hideout: unknown area")
	ErrUnknownRecipe        = errors.New("hideout: unknown recipe")
	ErrNoNextStage          = errors.New("hideout: no next stage")
	ErrItemsUnavailable     = errors.New("hideout: required items unavailable")
	ErrNotConstructing      = errors.New("hideout: area is not constructing")
	ErrAlreadyConstructing  = errors.New("hideout: area is already constructing")
	ErrNotInProgress        = errors.New("hideout: production not in progress")
	ErrProductionInProgress = errors.New("hideout: production already in progress")
	ErrNotYetDue            = errors.New("hideout: not yet due")
	ErrInvalidSlot          = errors.New("hideout: invalid area slot")
	ErrSlotEmpty            = errors.New("hideout: area slot is empty")
	ErrNoImprovements       = errors.New("hideout: no improvements available")
	ErrInvalidDuration      = errors.New("hideout: invalid duration")
)
