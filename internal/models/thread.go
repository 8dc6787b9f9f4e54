package models

import "time"

// Thread is the derived per-counterparty aggregate: every conversation with
// the same other-party user merged into one unit. Threads are rebuilt from
// scratch on each aggregation pass and never persisted.
type Thread struct {
	Counterparty    Profile   `json:"counterparty"`
	ConversationIDs []int     `json:"conversation_ids"`
	LastMessage     *Message  `json:"last_message,omitempty"`
	LastActivity    time.Time `json:"last_activity"`
	UnreadCount     int       `json:"unread_count"`
	Archived        bool      `json:"archived"`
	Bookmarked      bool      `json:"bookmarked"`
}
