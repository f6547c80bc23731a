package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Event types for the activity stream
const (
	EventPointsChanged         = "points_changed"
	EventFriendRequestSent     = "friend_request_sent"
	EventFriendRequestAccepted = "friend_request_accepted"
)

// Stream names
const (
	StreamActivity = "stream:activity"
)

// Consumer group name for activity workers
const (
	ConsumerGroupActivity = "activity_workers"
)

// ActivityEvent is published after a change commits. All activity events
// share this structure; unused fields stay zero.
type ActivityEvent struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"` // Unix seconds

	// PointsChanged
	UserID int64 `json:"user_id,omitempty"`

	// FriendRequestSent, FriendRequestAccepted
	FriendshipID int64 `json:"friendship_id,omitempty"`
	RequesterID  int64 `json:"requester_id,omitempty"`
	AddresseeID  int64 `json:"addressee_id,omitempty"`
}

// NewPointsChangedEvent tells workers to refresh a user's leaderboard entry.
func NewPointsChangedEvent(userID int64) ActivityEvent {
	return ActivityEvent{
		Type:      EventPointsChanged,
		Timestamp: time.Now().Unix(),
		UserID:    userID,
	}
}

// NewFriendRequestSentEvent notifies the addressee of a new request.
func NewFriendRequestSentEvent(friendshipID, requesterID, addresseeID int64) ActivityEvent {
	return ActivityEvent{
		Type:         EventFriendRequestSent,
		Timestamp:    time.Now().Unix(),
		FriendshipID: friendshipID,
		RequesterID:  requesterID,
		AddresseeID:  addresseeID,
	}
}

// NewFriendRequestAcceptedEvent notifies the requester that the request was accepted.
func NewFriendRequestAcceptedEvent(friendshipID, requesterID, addresseeID int64) ActivityEvent {
	return ActivityEvent{
		Type:         EventFriendRequestAccepted,
		Timestamp:    time.Now().Unix(),
		FriendshipID: friendshipID,
		RequesterID:  requesterID,
		AddresseeID:  addresseeID,
	}
}

// ToMap converts the event to XADD field-value pairs. The JSON body
// goes in "data"; "type" is duplicated for XRANGE inspection.
func (e ActivityEvent) ToMap() (map[string]interface{}, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal event: %w", err)
	}
	return map[string]interface{}{
		"type": e.Type,
		"data": string(data),
	}, nil
}

// ParseActivityEvent parses an ActivityEvent from Redis stream message values.
func ParseActivityEvent(values map[string]interface{}) (ActivityEvent, error) {
	data, ok := values["data"].(string)
	if !ok {
		return ActivityEvent{}, fmt.Errorf("missing or invalid 'data' field")
	}

	var event ActivityEvent
	if err := json.Unmarshal([]byte(data), &event); err != nil {
		return ActivityEvent{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return event, nil
}
