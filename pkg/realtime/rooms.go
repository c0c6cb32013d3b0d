package realtime

// RoomPayload is the data of a join or leave frame.
type RoomPayload struct {
	RoomID string `json:"roomId"`
}

// JoinRoom asks the hub to add the sender to roomID.
func JoinRoom(s Sender, roomID string) bool {
	return s.Send(TypeUserJoined, RoomPayload{RoomID: roomID}, SendOptions{Priority: PriorityNormal})
}

// LeaveRoom asks the hub to remove the sender from roomID.
func LeaveRoom(s Sender, roomID string) bool {
	return s.Send(TypeUserLeft, RoomPayload{RoomID: roomID}, SendOptions{Priority: PriorityNormal})
}
