package app

type BackpressureAction int

const (
	// KickMember removes the session.
	KickMember BackpressureAction = iota
	// MarkSlow keeps the session but stops lossy fan-out to it until a
	// regular frame goes through again.
	MarkSlow
)

// Policy decides what happens to a session whose send failed.
type Policy interface {
	OnBackPressure(s *Session, err error) BackpressureAction
}

// SimplePolicy removes any session that cannot take a frame.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(*Session, error) BackpressureAction {
	return KickMember
}
