package transport

import (
	"encoding/json"
	"errors"
	"testing"

	werrors "github.com/vinayprograms/workkit/errors"
)

func TestParseActivity_Message(t *testing.T) {
	data := []byte(`{"type":"message","id":"a1","text":"hi","conversation":{"id":"c1"},
		"from":{"id":"user"},"recipient":{"id":"bot"}}`)
	act, err := ParseActivity(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if act.Type != TypeMessage || act.Text != "hi" {
		t.Errorf("unexpected activity: %+v", act)
	}
	if act.ConversationID() != "c1" {
		t.Errorf("conversation = %q, want %q", act.ConversationID(), "c1")
	}
	if act.ExpectsInline() {
		t.Error("plain message should not be inline")
	}
}

func TestParseActivity_MissingType(t *testing.T) {
	_, err := ParseActivity([]byte(`{"text":"hi"}`))
	if !errors.Is(err, ErrMissingType) {
		t.Fatalf("expected ErrMissingType, got %v", err)
	}
}

func TestParseActivity_InvalidJSON(t *testing.T) {
	_, err := ParseActivity([]byte(`{invalid json}`))
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if !werrors.Is(err, werrors.ErrCodeInvalidArgument) {
		t.Errorf("expected INVALID_ARGUMENT, got %v", err)
	}
}

func TestExpectsInline(t *testing.T) {
	tests := []struct {
		act  Activity
		want bool
	}{
		{Activity{Type: TypeInvoke}, true},
		{Activity{Type: TypeMessage, DeliveryMode: DeliveryExpectReplies}, true},
		{Activity{Type: TypeMessage, DeliveryMode: "ExpectReplies"}, true},
		{Activity{Type: TypeMessage, DeliveryMode: "normal"}, false},
		{Activity{Type: TypeConversationUpdate}, false},
	}
	for _, tt := range tests {
		if got := tt.act.ExpectsInline(); got != tt.want {
			t.Errorf("ExpectsInline(%s/%s) = %v, want %v", tt.act.Type, tt.act.DeliveryMode, got, tt.want)
		}
	}
}

func TestReply(t *testing.T) {
	act := &Activity{
		Type:         TypeMessage,
		ID:           "a1",
		ChannelID:    "emulator",
		From:         &ChannelAccount{ID: "user"},
		Recipient:    &ChannelAccount{ID: "bot"},
		Conversation: &ConversationAccount{ID: "c1"},
	}

	reply := act.Reply("Echo: hi")
	if reply.Type != TypeMessage || reply.Text != "Echo: hi" || reply.ReplyToID != "a1" {
		t.Errorf("unexpected reply: %+v", reply)
	}
	if reply.From.ID != "bot" || reply.Recipient.ID != "user" {
		t.Errorf("expected sender and recipient swapped, got from=%v to=%v", reply.From, reply.Recipient)
	}
	reply.Conversation.ID = "changed"
	if act.Conversation.ID != "c1" {
		t.Error("reply must not share the conversation with the original")
	}
}

func TestReply_NoConversation(t *testing.T) {
	reply := (&Activity{Type: TypeMessage}).Reply("x")
	if reply.Conversation != nil || reply.ConversationID() != "" {
		t.Errorf("expected no conversation, got %+v", reply.Conversation)
	}
}

func TestMarshalActivity(t *testing.T) {
	data, err := MarshalActivity(&Activity{Type: TypeMessage, Text: "hello"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]interface{}
	json.Unmarshal(data, &decoded)
	if decoded["type"] != "message" || decoded["text"] != "hello" {
		t.Errorf("unexpected JSON: %s", data)
	}
	if _, ok := decoded["conversation"]; ok {
		t.Errorf("empty fields should be omitted: %s", data)
	}

	if _, err := MarshalActivity(nil); err == nil {
		t.Error("expected error for nil activity")
	}
}
