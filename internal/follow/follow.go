// Package follow decides whether a scrolling transcript view should jump to
// its newest entry after the transcript grows.
package follow

// DefaultThreshold is the distance from the bottom, in display units, within
// which the view still counts as being at the bottom.
const DefaultThreshold = 50

// Metrics are the raw scroll measurements reported by the renderer
type Metrics struct {
	ScrollHeight int // total content height
	ScrollTop    int // offset of the first visible unit
	ClientHeight int // visible height
}

// Bottom returns the largest valid scroll offset
func (m Metrics) Bottom() int {
	if m.ScrollHeight <= m.ClientHeight {
		return 0
	}
	return m.ScrollHeight - m.ClientHeight
}

// Follower tracks whether the user is at the bottom of the view.
type Follower struct {
	threshold int
	atBottom  bool
}

// New creates a Follower that starts at the bottom. A non-positive threshold
// selects DefaultThreshold.
func New(threshold int) *Follower {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Follower{threshold: threshold, atBottom: true}
}

// Threshold returns the distance used to decide whether the view is at the bottom
func (f *Follower) Threshold() int {
	return f.threshold
}

// AtBottom reports whether new content should be followed
func (f *Follower) AtBottom() bool {
	return f.atBottom
}

// OnScroll records a user-driven scroll
func (f *Follower) OnScroll(m Metrics) {
	f.atBottom = m.ScrollHeight-m.ScrollTop-m.ClientHeight < f.threshold
}

// ForceBottom marks the view as following, whatever its position. It is
// called when the user submits a message, before the transcript changes.
func (f *Follower) ForceBottom() {
	f.atBottom = true
}

// AfterAppend is called once the transcript went from before to after
// messages and the new content has been laid out into m. It returns the
// scroll offset to apply and whether it differs from the current one.
func (f *Follower) AfterAppend(before, after int, m Metrics) (offset int, moved bool) {
	if after <= before || !f.atBottom {
		return m.ScrollTop, false
	}
	bottom := m.Bottom()
	return bottom, bottom != m.ScrollTop
}
