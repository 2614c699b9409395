package ports

// BindingOutcome is the tri-state result of offering an inbound request to
// a wire binding. It replaces exception-driven dispatch: callers try each
// binding in turn and only treat Rejected as an error.
type BindingOutcome int

const (
	// BindingNotApplicable means the envelope does not belong to this
	// binding (wrong endpoint or missing parameters). The caller should
	// try the next binding.
	BindingNotApplicable BindingOutcome = iota

	// BindingRejected means the envelope belongs to this binding but
	// failed decoding or verification. The round trip is over.
	BindingRejected

	// BindingAccepted means the envelope decoded and verified.
	BindingAccepted
)

// String returns a readable name for logging.
func (o BindingOutcome) String() string {
	switch o {
	case BindingNotApplicable:
		return "not_applicable"
	case BindingRejected:
		return "rejected"
	case BindingAccepted:
		return "accepted"
	default:
		return "unknown"
	}
}
