package watch

import (
	"strings"
	"time"
)

// Activity is a row of dots lit by events and dimmed one per two idle
// seconds.
type Activity struct {
	lit       int
	lastEvent time.Time
}

const activityDots = 5

func (a *Activity) OnEvent(now time.Time) {
	a.lit = activityDots
	a.lastEvent = now
}

func (a *Activity) Decay(now time.Time) {
	if a.lit == 0 {
		return
	}
	idle := int(now.Sub(a.lastEvent) / (2 * time.Second))
	a.lit = max(activityDots-idle, 0)
}

func (a Activity) LastEvent() time.Time { return a.lastEvent }

func (a Activity) Render(theme Theme) string {
	var b strings.Builder
	for i := range activityDots {
		if i < a.lit {
			b.WriteString(theme.DotOn.Render("●"))
		} else {
			b.WriteString(theme.DotOff.Render("○"))
		}
	}
	return b.String()
}
