package chialog

import (
	"regexp"
	"strconv"

	"github.com/V4T54L/chia-harvester-metrics/internal/domain"
)

// HarvesterApp is the app token of lines written by the chia harvester.
const HarvesterApp = "harvester"

var harvestRe = regexp.MustCompile(`^(\d+) plots were eligible for farming [0-9a-f]+\.\.\. Found (\d+) proofs\..*Total (\d+) plots`)

// ExtractHarvest returns the harvest report carried by entry, if any.
// Only harvester entries are inspected.
func ExtractHarvest(entry domain.LogEntry) (domain.HarvestEvent, bool) {
	if entry.App != HarvesterApp {
		return domain.HarvestEvent{}, false
	}

	m := harvestRe.FindStringSubmatch(entry.Text)
	if m == nil {
		return domain.HarvestEvent{}, false
	}

	eligible, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return domain.HarvestEvent{}, false
	}
	proofs, err := strconv.ParseUint(m[2], 10, 64)
	if err != nil {
		return domain.HarvestEvent{}, false
	}
	total, err := strconv.ParseInt(m[3], 10, 64)
	if err != nil {
		return domain.HarvestEvent{}, false
	}

	return domain.HarvestEvent{
		EligiblePlots: eligible,
		ProofsFound:   proofs,
		TotalPlots:    total,
	}, true
}
