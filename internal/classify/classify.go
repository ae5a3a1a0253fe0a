/*
Package classify assigns a category to an announcement from its title and
description text.
*/
package classify

import "strings"

// Category is one tag from the closed set below. Every announcement gets
// exactly one.
type Category string

const (
	AGMEGM           Category = "agm_egm"
	BoardMeeting     Category = "board_meeting"
	Results          Category = "results"
	CorpAction       Category = "corp_action"
	InsiderTrading   Category = "insider_trading"
	CompanyUpdate    Category = "company_update"
	NewListing       Category = "new_listing"
	IntegratedFiling Category = "integrated_filing"
	Other            Category = "other"
)

type rule struct {
	keywords []string
	category Category
}

// rules is a decision list, not a map: families are checked top to bottom
// and the first match wins, so the order carries the precedence. Text
// matching both "board meeting" and "results" is a board meeting.
var rules = []rule{
	{[]string{"agm", "egm", "general meeting", "annual general meeting"}, AGMEGM},
	{[]string{"board meeting", "board"}, BoardMeeting},
	{[]string{"financial result", "results", "unaudited", "audited"}, Results},
	{[]string{"dividend", "bonus", "split", "buyback", "corporate action", "record date"}, CorpAction},
	{[]string{"insider", "sast", "substantial acquisition", "shareholding"}, InsiderTrading},
	{[]string{"update", "clarification", "announcement", "press release"}, CompanyUpdate},
	{[]string{"listing", "ipo", "public offer"}, NewListing},
	{[]string{"filing", "compliance", "trading window"}, IntegratedFiling},
}

// Classify maps title and description to a category. Deterministic, total,
// case-insensitive; falls through to Other when no family matches.
func Classify(title, description string) Category {
	text := strings.ToLower(title + description)

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(text, kw) {
				return r.category
			}
		}
	}

	return Other
}
