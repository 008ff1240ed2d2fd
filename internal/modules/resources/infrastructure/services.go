package infrastructure

import (
	"context"
	"log/slog"
	"net/http"

	"bizdash/internal/modules/resources/domain"
	"bizdash/internal/platform/gateway"
)

// SaleService adds the attachment link operation to the sales resource.
type SaleService struct {
	*Service[domain.Sale]
}

// AttachFile links a conversation attachment to a sale.
func (s *SaleService) AttachFile(ctx context.Context, token, saleID, attachmentID string) (*domain.Attachment, error) {
	if err := requireToken(token); err != nil {
		return nil, err
	}
	if err := requireID(attachmentID); err != nil {
		return nil, err
	}
	path, err := s.endpoint.subresourcePath(saleID, "attachments")
	if err != nil {
		return nil, err
	}
	s.logger.Info("sale attach file", slog.String("saleId", saleID), slog.String("attachmentId", attachmentID))
	return doSingle[domain.Attachment](ctx, s.doer, gateway.Request{
		Method: http.MethodPost,
		Path:   path,
		Token:  token,
		Body:   map[string]string{"attachmentId": attachmentID},
	})
}

// MessageService adds sending to the messages resource.
type MessageService struct {
	*Service[domain.Message]
}

// Send posts a new outbound message into a conversation.
func (s *MessageService) Send(ctx context.Context, token, conversationID string, input domain.MessageInput) (*domain.Message, error) {
	return s.Create(ctx, token, map[string]string{"conversationId": conversationID}, input)
}

// Services bundles one service per dashboard resource, built once at start-up.
type Services struct {
	Stores        *Service[domain.Store]
	Copypoints    *Service[domain.Copypoint]
	Sales         *SaleService
	Payments      *Service[domain.Payment]
	Conversations *Service[domain.Conversation]
	Messages      *MessageService
	Attachments   *Service[domain.Attachment]
	Integrations  *Service[domain.Integration]
}

func NewServices(doer Doer, logger *slog.Logger) *Services {
	return &Services{
		Stores:        NewService[domain.Store](StoresEndpoint, doer, logger),
		Copypoints:    NewService[domain.Copypoint](CopypointsEndpoint, doer, logger),
		Sales:         &SaleService{NewService[domain.Sale](SalesEndpoint, doer, logger)},
		Payments:      NewService[domain.Payment](PaymentsEndpoint, doer, logger),
		Conversations: NewService[domain.Conversation](ConversationsEndpoint, doer, logger),
		Messages:      &MessageService{NewService[domain.Message](MessagesEndpoint, doer, logger)},
		Attachments:   NewService[domain.Attachment](AttachmentsEndpoint, doer, logger),
		Integrations:  NewService[domain.Integration](IntegrationsEndpoint, doer, logger),
	}
}

func requireID(id string) error {
	_, err := resourcePathBuilder("/")(id)
	return err
}
