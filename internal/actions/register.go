package actions

import "time"

// Options tunes the built-in handlers.
type Options struct {
	MoveTimeout   time.Duration
	MoveTolerance float64
	JumpHold      time.Duration
}

func DefaultOptions() Options {
	return Options{
		MoveTimeout:   30 * time.Second,
		MoveTolerance: 1,
		JumpHold:      200 * time.Millisecond,
	}
}

// RegisterDefaults binds a handler for every action type.
func RegisterDefaults(r *Registry, opts Options) {
	def := DefaultOptions()
	if opts.MoveTimeout <= 0 {
		opts.MoveTimeout = def.MoveTimeout
	}
	if opts.MoveTolerance <= 0 {
		opts.MoveTolerance = def.MoveTolerance
	}
	if opts.JumpHold <= 0 {
		opts.JumpHold = def.JumpHold
	}

	r.Register(TypeMoveTo, moveTo{timeout: opts.MoveTimeout, tolerance: opts.MoveTolerance})
	r.Register(TypeJump, jump{hold: opts.JumpHold})
	r.Register(TypeSprint, controlToggle{flag: "sprint", label: "Sprint"})
	r.Register(TypeSneak, controlToggle{flag: "sneak", label: "Sneak"})
	r.Register(TypeLookAt, HandlerFunc(lookAt))

	r.Register(TypeDig, HandlerFunc(dig))
	r.Register(TypePlaceBlock, HandlerFunc(placeBlock))

	r.Register(TypeAttack, HandlerFunc(attack))
	r.Register(TypeEquip, HandlerFunc(equip))

	r.Register(TypeUseItem, HandlerFunc(useItem))
	r.Register(TypeOpenContainer, HandlerFunc(openContainer))
	r.Register(TypeInteractEntity, HandlerFunc(interactEntity))

	r.Register(TypeSendChat, HandlerFunc(sendChat))
}
