package nats

import (
	"encoding/json"
	"errors"
	"fmt"

	"sudooom.im.chat/internal/store"
)

var ErrInvalidEvent = errors.New("invalid change event")

// EncodeEvent 编码变更事件
func EncodeEvent(event store.ChangeEvent) ([]byte, error) {
	if err := validate(event); err != nil {
		return nil, err
	}
	return json.Marshal(event)
}

// DecodeEvent 解码并校验变更事件
func DecodeEvent(data []byte) (store.ChangeEvent, error) {
	var event store.ChangeEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return store.ChangeEvent{}, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	if err := validate(event); err != nil {
		return store.ChangeEvent{}, err
	}
	return event, nil
}

func validate(event store.ChangeEvent) error {
	if event.ConversationID == "" {
		return fmt.Errorf("%w: missing chatId", ErrInvalidEvent)
	}
	switch event.Type {
	case store.EventInsert:
		if event.Message == nil || event.Message.ID == "" {
			return fmt.Errorf("%w: insert without message", ErrInvalidEvent)
		}
	case store.EventUpdate:
		if event.Patch == nil || event.Patch.ID == "" {
			return fmt.Errorf("%w: update without patch", ErrInvalidEvent)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidEvent, event.Type)
	}
	return nil
}
