package attachments

import (
	"context"
	"encoding/json"
	"fmt"

	domain "github.com/example/company-chat/domain/chat"
	"github.com/go-monolith/mono"
	"github.com/go-monolith/mono/pkg/helper"
)

// AttachmentsAdapter calls the attachments module through the service container.
type AttachmentsAdapter struct {
	container mono.ServiceContainer
}

// NewAttachmentsAdapter creates a new AttachmentsAdapter.
func NewAttachmentsAdapter(container mono.ServiceContainer) *AttachmentsAdapter {
	if container == nil {
		panic("attachments: ServiceContainer is nil")
	}
	return &AttachmentsAdapter{container: container}
}

// PurgeRoomAttachments deletes all objects of a room in one namespace.
// The count is meaningful even when an error is returned.
func (a *AttachmentsAdapter) PurgeRoomAttachments(ctx context.Context, roomID string, kind domain.AttachmentKind) (int, error) {
	req := PurgeRequest{RoomID: roomID, Kind: kind}
	var resp PurgeResponse
	if err := helper.CallRequestReplyService(
		ctx,
		a.container,
		ServicePurgeRoomAttachments,
		json.Marshal,
		json.Unmarshal,
		&req,
		&resp,
	); err != nil {
		return 0, fmt.Errorf("%w: purge request failed: %v", domain.ErrDependency, err)
	}
	if resp.Code != "" {
		return resp.Deleted, domain.FromCode(resp.Code, resp.Error)
	}
	return resp.Deleted, nil
}
