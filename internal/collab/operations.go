package collab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tilescope/tilescope/backend-go/internal/collab/protocol"
)

// handleElementCreated stores a drawn element, acknowledges it to the
// sender and tells the room the annotation changed.
func (h *Hub) handleElementCreated(ctx context.Context, sender *Client, msg *protocol.Message) {
	var req protocol.ElementCreatedPayload
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		h.nack(sender, "", fmt.Sprintf("invalid payload: %v", err))
		return
	}
	if req.AnnotationID == "" {
		h.nack(sender, req.RequestID, "annotationId is required")
		return
	}
	if h.save == nil {
		h.nack(sender, req.RequestID, "element storage unavailable")
		return
	}

	stored, err := h.save(ctx, req.AnnotationID, req.Element)
	if err != nil {
		h.log.Warn("save element failed", "annotation", req.AnnotationID, "user", sender.UserID, "error", err)
		h.nack(sender, req.RequestID, err.Error())
		return
	}

	seq := h.announceChange(sender.ItemID, req.AnnotationID, sender.UserID)
	ack, err := protocol.NewMessage(protocol.TypeElementAck, protocol.ElementAckPayload{
		RequestID:    req.RequestID,
		AnnotationID: req.AnnotationID,
		ElementID:    stored.ID,
		ServerSeq:    seq,
	})
	if err == nil {
		ack.Seq = seq
		sender.Send(ack)
	}
}

func (h *Hub) nack(sender *Client, requestID, reason string) {
	msg, err := protocol.NewMessage(protocol.TypeElementNack, protocol.ElementNackPayload{RequestID: requestID, Reason: reason})
	if err != nil {
		return
	}
	sender.Send(msg)
}
