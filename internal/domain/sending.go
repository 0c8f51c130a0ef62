package domain

import "fmt"

// Sender identifies the sending persona for a campaign. The persona fixes
// the display name and local part of every from-address; the domain comes
// from the shared pool.
type Sender string

const (
	SenderToddVitzthum Sender = "todd_vitzthum"
	SenderJeffRichmond Sender = "jeff_richmond"
)

// Valid reports whether s is a known sender persona.
func (s Sender) Valid() bool {
	return s == SenderToddVitzthum || s == SenderJeffRichmond
}

// DisplayName returns the human-readable from name for the persona.
func (s Sender) DisplayName() string {
	if s == SenderToddVitzthum {
		return "Todd Vitzthum"
	}
	return "Jeff Richmond"
}

// LocalPart returns the mailbox local part for the persona.
func (s Sender) LocalPart() string {
	if s == SenderToddVitzthum {
		return "todd.vitzthum"
	}
	return "jeff.richmond"
}

// DomainPool is the ordered list of warmed sending sub-domains. Queue items
// persist an index into this list, so order is part of the data contract:
// append only, never reorder.
var DomainPool = []string{
	// Original 7 domains
	"connect-ozlistings.com",
	"engage-ozlistings.com",
	"get-ozlistings.com",
	"join-ozlistings.com",
	"outreach-ozlistings.com",
	"ozlistings-reach.com",
	"reach-ozlistings.com",
	// Warmed later
	"access-ozlistings.com",
	"contact-ozlistings.com",
	"direct-ozlistings.com",
	"grow-ozlistings.com",
	"growth-ozlistings.com",
	"link-ozlistings.com",
	"network-ozlistings.com",
	"ozlistings-access.com",
	"ozlistings-connect.com",
	"ozlistings-contact.com",
	"ozlistings-direct.com",
	"ozlistings-engage.com",
	"ozlistings-get.com",
	"ozlistings-grow.com",
	"ozlistings-join.com",
	"ozlistings-link.com",
	"ozlistings-network.com",
	"ozlistings-outreach.com",
	"ozlistings-team.com",
	"ozlistngs-growth.com",
	"team-ozlistings.com",
}

// FromAddress renders the full RFC 5322 from-address for a sender persona
// and a domain pool index, e.g. `Todd Vitzthum <todd.vitzthum@get-ozlistings.com>`.
func FromAddress(s Sender, domainIndex int) string {
	domain := DomainPool[domainIndex%len(DomainPool)]
	return fmt.Sprintf("%s <%s@%s>", s.DisplayName(), s.LocalPart(), domain)
}
