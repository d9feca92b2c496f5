package chatapi

import (
	"context"

	"github.com/Anix003/aura-seer/cmd/internal/chat"
	"github.com/Anix003/aura-seer/cmd/internal/directory"
	v1 "github.com/Anix003/aura-seer/shared/contracts/chat/v1"
)

// toViews renders msgs with sender/receiver display data from one batched
// directory lookup. Lookup failures degrade to id-only parties.
func (h *Handler) toViews(ctx context.Context, msgs []chat.Message) []v1.MessageView {
	out := make([]v1.MessageView, 0, len(msgs))
	if len(msgs) == 0 {
		return out
	}

	ids := make([]string, 0, 2*len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.SenderID, m.ReceiverID)
	}
	users, err := h.dir.Lookup(ctx, ids)
	if err != nil {
		h.log.Warn("chat.view.lookup.fail", "err", err)
		users = nil
	}

	for _, m := range msgs {
		out = append(out, v1.MessageView{
			ID:        m.ID,
			Message:   m.Body,
			Timestamp: m.Timestamp,
			Seen:      m.Seen,
			Sender:    toParty(m.SenderID, users),
			Receiver:  toParty(m.ReceiverID, users),
		})
	}
	return out
}

func (h *Handler) toView(ctx context.Context, m chat.Message) v1.MessageView {
	return h.toViews(ctx, []chat.Message{m})[0]
}

func toParty(id string, users map[string]directory.User) v1.Party {
	p := v1.Party{ID: id}
	if u, ok := users[id]; ok {
		p.Name = u.Name
		p.Role = string(u.Role)
	}
	return p
}

// toWire renders a stream event into its wire shape.
func (h *Handler) toWire(ctx context.Context, ev chat.StreamEvent) v1.StreamEvent {
	switch ev.Type {
	case chat.StreamEventConnected:
		return v1.StreamEvent{
			Type:    v1.EventConnected,
			Message: v1.ConnectedMessage,
			RoomID:  ev.RoomID,
			UserID:  ev.UserID,
		}
	case chat.StreamEventNewMessages:
		return v1.StreamEvent{
			Type:     v1.EventNewMessages,
			Messages: h.toViews(ctx, ev.Messages),
		}
	case chat.StreamEventError:
		return v1.StreamEvent{
			Type:    v1.EventError,
			Message: v1.FetchFailedMessage,
		}
	default:
		at := ev.At.UTC()
		return v1.StreamEvent{
			Type:      v1.EventHeartbeat,
			Timestamp: &at,
		}
	}
}
