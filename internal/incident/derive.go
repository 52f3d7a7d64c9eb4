// Package incident turns walkthrough rack entries into incident records.
package incident

import (
	"fmt"
	"strings"

	"github.com/mikaelcharbonneau/void-space-create-sub000/internal/domain/walkthrough"
)

// Context carries the walkthrough-level fields copied onto every incident.
type Context struct {
	Location      string
	DataHall      string
	WalkthroughID int
	UserID        string
}

// Derive maps one rack entry to at most one incident. It acts on the first of
// PSU, PDU, RDHX that is flagged and has a populated detail; the others are
// ignored. ok is false when no flagged device carries a detail.
func Derive(rack walkthrough.RackEntry, c Context) (inc walkthrough.Incident, ok bool) {
	detail, ok := rack.Issue()
	if !ok {
		return walkthrough.Incident{}, false
	}

	inc = walkthrough.Incident{
		Location:      c.Location,
		DataHall:      c.DataHall,
		RackNumber:    rack.RackLocation,
		PartType:      detail.Part(),
		Status:        walkthrough.IncidentOpen,
		Severity:      walkthrough.SeverityHigh,
		WalkthroughID: c.WalkthroughID,
		UserID:        c.UserID,
	}
	if detail.Critical() {
		inc.Severity = walkthrough.SeverityCritical
	}

	var comments string
	switch d := detail.(type) {
	case walkthrough.PSUDetail:
		inc.RackNumber = RackNumber(rack.RackLocation, d.UHeight)
		inc.PartIdentifier = d.PSUID
		inc.UHeight = d.UHeight
		inc.Description = fmt.Sprintf("PSU Issue - Status: %s, PSU ID: %s, U-Height: %s", d.Status, d.PSUID, d.UHeight)
		comments = d.Comments
	case walkthrough.PDUDetail:
		inc.PartIdentifier = d.PDUID
		inc.Description = fmt.Sprintf("PDU Issue - Status: %s, PDU ID: %s", d.Status, d.PDUID)
		comments = d.Comments
	case walkthrough.RDHXDetail:
		inc.PartIdentifier = "RDHX"
		inc.Description = fmt.Sprintf("RDHX Issue - Status: %s", d.Status)
		comments = d.Comments
	}
	if note := strings.TrimSpace(comments); note != "" {
		inc.Description += ", Comments: " + note
	}
	return inc, true
}

// DeriveAll derives incidents for every rack of a draft, in rack order.
func DeriveAll(d walkthrough.Draft, userID string) []walkthrough.Incident {
	if d.HasIssues != walkthrough.Yes {
		return nil
	}
	c := Context{
		Location:      d.Location,
		DataHall:      d.DataHall,
		WalkthroughID: d.WalkthroughNumber,
		UserID:        userID,
	}
	out := make([]walkthrough.Incident, 0, len(d.Racks))
	for _, rack := range d.Racks {
		if inc, ok := Derive(rack, c); ok {
			out = append(out, inc)
		}
	}
	return out
}

// RackNumber combines the digits of a rack location with the lower-cased
// U-height: X2401 + U12 gives 2401u12.
func RackNumber(rackLocation, uHeight string) string {
	var b strings.Builder
	for _, r := range rackLocation {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	b.WriteString(strings.ToLower(uHeight))
	return b.String()
}
