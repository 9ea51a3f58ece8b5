package realtime

import (
	"Zalor/internal/api/dto"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	createdAt := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	msg := &dto.MessageDTO{
		ID:         "65a000000000000000000001",
		Sender:     &dto.SenderDTO{ID: 1, Name: "alice", Avatar: "a.png"},
		ReceiverID: 2,
		Type:       "text",
		Content:    "hi",
		CreatedAt:  createdAt,
	}

	tests := []struct {
		name     string
		evt      Event
		expected string
	}{
		{
			name: "receive message",
			evt:  ReceiveMessage{Message: msg},
			expected: `{"event":"receiveMessage","data":{"id":"65a000000000000000000001",
				"senderId":{"id":1,"name":"alice","avatar":"a.png"},"receiverId":2,"isGroup":false,
				"type":"text","content":"hi","createdAt":"2024-01-02T03:04:05Z","updatedAt":null,
				"isRecalled":false,"isRead":false}}`,
		},
		{
			name:     "message read",
			evt:      MessageRead{ReceiverID: 1, SenderID: 2},
			expected: `{"event":"messageRead","data":{"receiverId":1,"senderId":2}}`,
		},
		{
			name:     "message recalled carries only the id",
			evt:      MessageRecalled{MessageID: "abc"},
			expected: `{"event":"messageRecalled","data":"abc"}`,
		},
		{
			name:     "user status",
			evt:      UserStatus{UserID: 9, IsOnline: true},
			expected: `{"event":"userStatus","data":{"userId":9,"isOnline":true}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := Encode(tt.evt)
			require.NoError(t, err)
			assert.JSONEq(t, tt.expected, string(frame))
		})
	}
}

func TestEncodeEdited(t *testing.T) {
	updatedAt := time.Date(2024, 1, 2, 3, 5, 0, 0, time.UTC)
	frame, err := Encode(MessageEdited{Message: &dto.MessageDTO{ID: "x", Content: "new", UpdatedAt: &updatedAt}})
	require.NoError(t, err)
	assert.Contains(t, string(frame), `"event":"messageEdited"`)
	assert.Contains(t, string(frame), `"updatedAt":"2024-01-02T03:05:00Z"`)
}
