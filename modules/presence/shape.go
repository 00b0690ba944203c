package presence

import domain "github.com/example/company-chat/domain/chat"

// OnlineUsersUpdate is the onlineUsersUpdate payload for viewers allowed to
// see who is online.
type OnlineUsersUpdate struct {
	RoomID string                 `json:"roomId"`
	Users  []domain.PresenceEntry `json:"users"`
	Count  int                    `json:"count"`
}

// OnlineCountUpdate is the onlineUsersUpdate payload for viewers that only
// learn how many principals are online.
type OnlineCountUpdate struct {
	RoomID string `json:"roomId"`
	Count  int    `json:"count"`
}

// Shape builds the onlineUsersUpdate payload for one viewer.
func Shape(viewer domain.Role, roomID string, entries []domain.PresenceEntry) any {
	if !domain.PolicyFor(viewer).SeesIdentities {
		return OnlineCountUpdate{RoomID: roomID, Count: len(entries)}
	}
	if entries == nil {
		entries = []domain.PresenceEntry{}
	}
	return OnlineUsersUpdate{RoomID: roomID, Users: entries, Count: len(entries)}
}
