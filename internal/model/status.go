package model

// MessageStatus is the outbound email lifecycle:
// Draft → Approved → Sent → {Failed | Responded}; Responded → Booked.
// Archival (store-level) is terminal from any status.
type MessageStatus string

const (
	StatusDraft     MessageStatus = "Draft"
	StatusApproved  MessageStatus = "Approved"
	StatusSent      MessageStatus = "Sent"
	StatusFailed    MessageStatus = "Failed"
	StatusResponded MessageStatus = "Responded"
	StatusBooked    MessageStatus = "Booked"
)

var messageTransitions = map[MessageStatus][]MessageStatus{
	StatusDraft:     {StatusApproved, StatusFailed},
	StatusApproved:  {StatusSent, StatusFailed},
	StatusSent:      {StatusResponded, StatusFailed},
	StatusResponded: {StatusBooked},
	// Undo reverses Booked back to Responded.
	StatusBooked: {StatusResponded},
}

// CanTransitionTo reports whether the forward path (plus the undo reversal
// Booked→Responded) allows moving to next.
func (s MessageStatus) CanTransitionTo(next MessageStatus) bool {
	for _, allowed := range messageTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// OutreachStatus tracks a game's position in the outreach funnel.
type OutreachStatus string

const (
	OutreachNotContacted OutreachStatus = "Not Contacted"
	OutreachEmailSent    OutreachStatus = "Email Sent"
	OutreachResponded    OutreachStatus = "Responded"
	OutreachNoResponse   OutreachStatus = "No Response"
	OutreachMissed       OutreachStatus = "Missed"
	OutreachBooked       OutreachStatus = "Booked"
	OutreachDeclined     OutreachStatus = "Declined"
)

// funnelRank orders statuses by how far along the funnel they are, so a
// game's status can be checked against its most advanced message.
var funnelRank = map[OutreachStatus]int{
	OutreachNotContacted: 0,
	OutreachMissed:       1,
	OutreachNoResponse:   2,
	OutreachEmailSent:    3,
	OutreachResponded:    4,
	OutreachDeclined:     5,
	OutreachBooked:       6,
}

// MoreAdvancedThan reports whether s is further down the funnel than other.
func (s OutreachStatus) MoreAdvancedThan(other OutreachStatus) bool {
	return funnelRank[s] > funnelRank[other]
}

// ResponseType is the classified intent of an inbound reply.
type ResponseType string

const (
	ResponseOutOfOffice   ResponseType = "Out of Office"
	ResponseBooked        ResponseType = "Booked"
	ResponseNotInterested ResponseType = "Not Interested"
	ResponseQuestion      ResponseType = "Question"
	ResponseInterested    ResponseType = "Interested"
)

// SequenceType picks the template family for a contact.
type SequenceType string

const (
	SequenceCold      SequenceType = "Cold"
	SequenceReturning SequenceType = "Returning"
)
