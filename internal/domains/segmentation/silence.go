package segmentation

// Decision is what a SilenceTracker asks the caller to do with a frame.
type Decision int

const (
	Continue Decision = iota
	Flush
)

func (d Decision) String() string {
	if d == Flush {
		return "flush"
	}
	return "continue"
}

// SilenceTracker counts consecutive silent frames after speech. The
// countdown stays within [0, threshold]; reaching 0 from above asks for a
// flush exactly once, and further silence keeps it at 0.
type SilenceTracker struct {
	threshold int
	remaining int
}

func NewSilenceTracker(threshold int) *SilenceTracker {
	return &SilenceTracker{threshold: threshold}
}

// Observe feeds one classification result.
func (s *SilenceTracker) Observe(isSpeech bool) Decision {
	if isSpeech {
		s.remaining = s.threshold
		return Continue
	}
	if s.remaining == 0 {
		return Continue
	}
	s.remaining--
	if s.remaining == 0 {
		return Flush
	}
	return Continue
}

// Remaining is the current countdown value.
func (s *SilenceTracker) Remaining() int {
	return s.remaining
}

func (s *SilenceTracker) Threshold() int {
	return s.threshold
}

func (s *SilenceTracker) Reset() {
	s.remaining = 0
}
