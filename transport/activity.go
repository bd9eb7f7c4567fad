package transport

import (
	"encoding/json"
	"strings"

	werrors "github.com/vinayprograms/workkit/errors"
)

// Activity types.
const (
	TypeMessage            = "message"
	TypeConversationUpdate = "conversationUpdate"
	TypeInvoke             = "invoke"
	TypeTrace              = "trace"
)

// DeliveryExpectReplies asks the receiver to return replies in the
// response body instead of sending them asynchronously.
const DeliveryExpectReplies = "expectReplies"

// Parse errors.
var (
	ErrMalformed   = werrors.New(werrors.ErrCodeInvalidArgument, "malformed activity")
	ErrMissingType = werrors.New(werrors.ErrCodeInvalidArgument, "activity type is required")
)

// ChannelAccount identifies a user or bot on a channel.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ConversationAccount identifies a conversation.
type ConversationAccount struct {
	ID string `json:"id"`
}

// Activity is a single unit of conversation traffic.
type Activity struct {
	Type         string               `json:"type"`
	ID           string               `json:"id,omitempty"`
	ChannelID    string               `json:"channelId,omitempty"`
	ServiceURL   string               `json:"serviceUrl,omitempty"`
	From         *ChannelAccount      `json:"from,omitempty"`
	Recipient    *ChannelAccount      `json:"recipient,omitempty"`
	Conversation *ConversationAccount `json:"conversation,omitempty"`
	ReplyToID    string               `json:"replyToId,omitempty"`
	Text         string               `json:"text,omitempty"`
	DeliveryMode string               `json:"deliveryMode,omitempty"`
	MembersAdded []ChannelAccount     `json:"membersAdded,omitempty"`

	// Name and Value carry invoke payloads.
	Name  string          `json:"name,omitempty"`
	Value json.RawMessage `json:"value,omitempty"`
}

// ConversationID returns the conversation ID, or "" when absent.
func (a *Activity) ConversationID() string {
	if a.Conversation == nil {
		return ""
	}
	return a.Conversation.ID
}

// ExpectsInline reports whether the activity must be answered within the
// request that carried it.
func (a *Activity) ExpectsInline() bool {
	return a.Type == TypeInvoke || strings.EqualFold(a.DeliveryMode, DeliveryExpectReplies)
}

// Reply builds a message activity addressed back to the sender.
func (a *Activity) Reply(text string) *Activity {
	reply := &Activity{
		Type:       TypeMessage,
		ChannelID:  a.ChannelID,
		ServiceURL: a.ServiceURL,
		ReplyToID:  a.ID,
		Text:       text,
		From:       a.Recipient,
		Recipient:  a.From,
	}
	if a.Conversation != nil {
		conv := *a.Conversation
		reply.Conversation = &conv
	}
	return reply
}

// ExpectedReplies is the response body for inline activities.
type ExpectedReplies struct {
	Activities []*Activity `json:"activities"`
}

// ParseActivity decodes a JSON activity. A missing type is an error.
func ParseActivity(data []byte) (*Activity, error) {
	var act Activity
	if err := json.Unmarshal(data, &act); err != nil {
		return nil, werrors.WrapWithCode(err, werrors.ErrCodeInvalidArgument, "malformed activity")
	}
	if act.Type == "" {
		return nil, ErrMissingType
	}
	return &act, nil
}

// MarshalActivity encodes an activity as JSON.
func MarshalActivity(act *Activity) ([]byte, error) {
	if act == nil {
		return nil, ErrMalformed
	}
	return json.Marshal(act)
}
