package protocol

// ContainsSequenceFunc decides whether a sequence sub-field is present on
// the wire for a given flags nibble. It is injected into the codec rather
// than hard-coded so the codec itself stays pure and independently
// testable, per the wire contract's sequence-presence rule.
type ContainsSequenceFunc func(flags Flags) bool

// DefaultContainsSequence is the predicate this client supplies: a sequence
// sub-field is present iff the positive-seq or negative-seq state is set.
func DefaultContainsSequence(flags Flags) bool {
	switch flags.SequenceState() {
	case FlagPositiveSequence, FlagNegativeSequence:
		return true
	default:
		return false
	}
}
