// Package printmap dumps the current substitute address assignments to the
// log in response to the print-map signal (spec §6). Grounded on
// original_source/src/get4for6/modules/m_printmap/_PrintMapTask.py.
package printmap

import (
	"fmt"

	"github.com/vitlabuda/get4for6-go/internal/addrmap"
	"github.com/vitlabuda/get4for6-go/internal/applog"
)

const (
	staticMappingsBanner = "--- Static mappings ---"
	staticMappingPattern = "%s <-> %s"

	dynamicMappingsBannerPattern = "--- Dynamic mappings for %s ---"
	dynamicMappingPattern        = "%s <-> %s ... %s"
	lifetimeInfoRemainingPattern = "remaining guaranteed lifetime: %d seconds"
	lifetimeInfoMayBeReplaced    = "may be replaced"

	sectionSpacing = 2
)

// Dump writes the full static and dynamic mapping table through
// applog.WriteLineBlock, in the same banner/line format the original
// process used, so existing log-scraping tooling keeps working unchanged.
func Dump(substituteMapper *addrmap.SubstituteMapper) {
	writeSectionSpacing()
	writeStaticMappings(substituteMapper)
	writeDynamicMappings(substituteMapper)
	writeSectionSpacing()
}

func writeStaticMappings(substituteMapper *addrmap.SubstituteMapper) {
	assignments := substituteMapper.StaticAssignments()
	if len(assignments) == 0 {
		return
	}

	writeSectionSpacing()
	writeLine(staticMappingsBanner)
	for _, a := range assignments {
		writeLine(fmt.Sprintf(staticMappingPattern, a.V4, a.V6))
	}
}

func writeDynamicMappings(substituteMapper *addrmap.SubstituteMapper) {
	substituteMapper.IterDynamicAssignments(func(client addrmap.ClientAssignments) bool {
		wroteBanner := false

		for a := range client.Assignments {
			if !wroteBanner {
				writeSectionSpacing()
				writeLine(fmt.Sprintf(dynamicMappingsBannerPattern, client.ClientV4))
				wroteBanner = true
			}

			writeLine(fmt.Sprintf(dynamicMappingPattern, a.V4, a.V6, lifetimeInfo(a)))
		}

		return true
	})
}

func lifetimeInfo(a addrmap.Assignment) string {
	if a.RemainingGuaranteedLife > 0 {
		return fmt.Sprintf(lifetimeInfoRemainingPattern, int64(a.RemainingGuaranteedLife.Seconds()))
	}
	return lifetimeInfoMayBeReplaced
}

func writeSectionSpacing() {
	for i := 0; i < sectionSpacing; i++ {
		writeLine("")
	}
}

func writeLine(line string) {
	applog.WriteLineBlock(line)
}
