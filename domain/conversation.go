package domain

// Conversation is the summary record owned by storage: who participates
// and how many messages each participant has not read yet.
type Conversation struct {
	ID           string         `json:"id"`
	Participants []UserID       `json:"participants"`
	UnreadCount  map[UserID]int `json:"unreadCount"`
}

// OtherParticipants returns every participant except the given one,
// preserving the stored order.
func (c Conversation) OtherParticipants(user UserID) []UserID {
	others := make([]UserID, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p != user {
			others = append(others, p)
		}
	}
	return others
}

// Normalize drops unread counters that do not belong to any participant.
// The UnreadCount keys must stay a subset of Participants.
func (c *Conversation) Normalize() {
	if c.UnreadCount == nil {
		c.UnreadCount = make(map[UserID]int)
		return
	}
	members := make(map[UserID]struct{}, len(c.Participants))
	for _, p := range c.Participants {
		members[p] = struct{}{}
	}
	for key := range c.UnreadCount {
		if _, ok := members[key]; !ok {
			delete(c.UnreadCount, key)
		}
	}
}
