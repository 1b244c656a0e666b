package upload

import "strings"

// Kind is a coarse document category guessed from the file name
type Kind string

const (
	KindMeetingNotes Kind = "meeting_notes"
	KindFinancial    Kind = "financial"
	KindPlanning     Kind = "planning"
	KindDocument     Kind = "document"
)

var kindKeywords = []struct {
	kind     Kind
	keywords []string
}{
	{KindMeetingNotes, []string{"meeting", "notes"}},
	{KindFinancial, []string{"financial", "report"}},
	{KindPlanning, []string{"project", "roadmap"}},
}

// Classify picks a Kind from keywords in name. First match wins.
func Classify(name string) Kind {
	lower := strings.ToLower(name)
	for _, k := range kindKeywords {
		for _, kw := range k.keywords {
			if strings.Contains(lower, kw) {
				return k.kind
			}
		}
	}
	return KindDocument
}
