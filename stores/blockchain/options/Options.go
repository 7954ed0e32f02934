package options

type PushBlockOptions struct {
	// History writes the address history rows of the block.
	History bool
	// Stealth writes the stealth rows of the block.
	Stealth bool
}

type PushBlockOption func(*PushBlockOptions)

func WithHistory(b bool) PushBlockOption {
	return func(opts *PushBlockOptions) {
		opts.History = b
	}
}

func WithStealth(b bool) PushBlockOption {
	return func(opts *PushBlockOptions) {
		opts.Stealth = b
	}
}

// ProcessPushBlockOptions applies opts over the defaults, which index everything.
func ProcessPushBlockOptions(opts ...PushBlockOption) *PushBlockOptions {
	options := &PushBlockOptions{
		History: true,
		Stealth: true,
	}

	for _, opt := range opts {
		opt(options)
	}

	return options
}
