package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jobscout/jobscout/pkg/models"
)

// BuildDigest renders one aggregated message for the listings analyzed in a
// run and reports how many listings the message includes. Only listings
// scoring at or above threshold are included, ranked by score descending and
// truncated to maxItems. Returns "" and 0 when nothing qualifies, in which
// case no notification should be sent.
func BuildDigest(listings []*models.Listing, threshold, maxItems int) (string, int) {
	var qualified []*models.Listing
	for _, l := range listings {
		if l.RelevanceScore != nil && *l.RelevanceScore >= threshold {
			qualified = append(qualified, l)
		}
	}
	if len(qualified) == 0 {
		return "", 0
	}

	sort.SliceStable(qualified, func(i, j int) bool {
		return *qualified[i].RelevanceScore > *qualified[j].RelevanceScore
	})

	total := len(qualified)
	if maxItems > 0 && len(qualified) > maxItems {
		qualified = qualified[:maxItems]
	}

	var b strings.Builder
	if total == 1 {
		b.WriteString("1 new job match found:\n")
	} else {
		fmt.Fprintf(&b, "%d new job matches found:\n", total)
	}

	for i, l := range qualified {
		rec := ""
		if l.Recommendation != nil {
			rec = " " + strings.ToUpper(*l.Recommendation)
		}
		fmt.Fprintf(&b, "%d. [%d%s] %s at %s", i+1, *l.RelevanceScore, rec, l.Title, l.Company)
		if l.Location != "" {
			fmt.Fprintf(&b, " (%s)", l.Location)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "   %s\n", l.CanonicalURL)
	}

	if total > len(qualified) {
		fmt.Fprintf(&b, "and %d more above your threshold.\n", total-len(qualified))
	}

	return b.String(), len(qualified)
}
