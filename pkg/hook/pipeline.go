package hook

import "context"

// Options selects the hook and execution strategy for one Exec call.
type Options struct {
	// Hook names the extension point whose handlers run.
	Hook string
	// Payload is passed to every handler (and seeds the waterfall chain).
	Payload any
	// Waterfall pipes each handler's non-nil return value into the next
	// handler as its payload.
	Waterfall bool
	// ReturnResult stops execution at the first handler returning a non-nil
	// value; that value becomes the outcome.
	ReturnResult bool
	// AllowExit stops execution when a handler returns Stop.
	AllowExit bool
}

// Outcome reports the result of one Exec call.
type Outcome struct {
	// Value is the final handler result per the selected strategy.
	Value any
	// Exited is set when a handler returned Stop under AllowExit.
	Exited bool
}

// Exec runs all handlers registered for the hook in series. With no handlers
// registered it returns an empty outcome and no error.
func (d *Dispatcher) Exec(ctx context.Context, opts Options) (Outcome, error) {
	handlers := d.snapshot(opts.Hook)
	if len(handlers) == 0 {
		return Outcome{}, nil
	}
	if opts.Waterfall {
		return runWaterfall(ctx, handlers, opts.Payload)
	}
	return runBubble(ctx, handlers, opts)
}

// runWaterfall threads each handler's return value into the next handler.
// A nil return leaves the current value unchanged.
func runWaterfall(ctx context.Context, handlers []Handler, payload any) (Outcome, error) {
	current := payload
	for _, h := range handlers {
		res, err := h(ctx, current)
		if err != nil {
			return Outcome{}, err
		}
		if res != nil {
			current = res
		}
	}
	return Outcome{Value: current}, nil
}

// runBubble executes handlers in order, honoring the first-result and
// early-exit stop conditions.
func runBubble(ctx context.Context, handlers []Handler, opts Options) (Outcome, error) {
	var out Outcome
	for _, h := range handlers {
		res, err := h(ctx, opts.Payload)
		if err != nil {
			return Outcome{}, err
		}
		if opts.AllowExit && res == Stop {
			out.Exited = true
			return out, nil
		}
		if res != nil {
			out.Value = res
			if opts.ReturnResult {
				return out, nil
			}
		}
	}
	return out, nil
}
