package driver

import (
	"fmt"
	"io"
	"strings"

	"github.com/bbque-tools/dse/internal/domain"
)

const barWidth = 50

// drawProgress redraws a single-line bar such as
// "[=====     ] 10% [14/144]" in place.
func drawProgress(w io.Writer, p domain.Progress) {
	if w == nil {
		return
	}
	pct := p.Percent()
	fill := int(pct / 2)
	fmt.Fprintf(w, "\r[%-*s] %d%% [%d/%d]", barWidth, strings.Repeat("=", fill), int(pct), p.Visited(), p.Total)
}
