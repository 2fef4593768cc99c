package domain

// InquiryStatus lifecycle of an item inquiry room
type InquiryStatus string

const (
	InquiryNew           InquiryStatus = "new"
	InquiryContacted     InquiryStatus = "contacted"
	InquiryInterested    InquiryStatus = "interested"
	InquiryNotInterested InquiryStatus = "not_interested"
	InquiryClosed        InquiryStatus = "closed"
)

// Priority of an inquiry for the owner
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid check priority is known
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// MaxLeadScore upper bound of Room.LeadScore
const MaxLeadScore = 100

var inquiryTransitions = map[InquiryStatus][]InquiryStatus{
	InquiryNew:           {InquiryContacted, InquiryInterested, InquiryNotInterested, InquiryClosed},
	InquiryContacted:     {InquiryInterested, InquiryNotInterested, InquiryClosed},
	InquiryInterested:    {InquiryNotInterested, InquiryClosed},
	InquiryNotInterested: {InquiryClosed},
	InquiryClosed:        nil,
}

// Valid check status is known
func (s InquiryStatus) Valid() bool {
	_, ok := inquiryTransitions[s]
	return ok
}

// CanTransition forward only, Closed is terminal
func CanTransition(from, to InquiryStatus) bool {
	for _, s := range inquiryTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// LeadScoreAfter score once the room moves into status
func LeadScoreAfter(score int, status InquiryStatus) int {
	switch status {
	case InquiryContacted:
		score += 10
	case InquiryInterested:
		score += 20
	}
	if score > MaxLeadScore {
		score = MaxLeadScore
	}
	return score
}
