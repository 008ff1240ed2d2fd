package usecase

import (
	"context"
	"log/slog"
	"strings"

	"bizdash/internal/modules/dashboard/domain"
	resdomain "bizdash/internal/modules/resources/domain"
	"bizdash/internal/modules/selection"
)

// CreateSale creates a sale at input.CopypointID, or at the selected copypoint
// when the input leaves it empty.
func (s *Session) CreateSale(ctx context.Context, input resdomain.SaleInput) (*resdomain.Sale, error) {
	copypointID := strings.TrimSpace(input.CopypointID)
	if copypointID == "" {
		copypointID = s.store.Snapshot().ID(selection.ScopeCopypoint)
		input.CopypointID = copypointID
	}
	sale, err := s.services.Sales.Create(ctx, s.Token(), map[string]string{"copypointId": copypointID}, input)
	if err != nil {
		return nil, err
	}
	s.afterMutation("sales", "created", sale.ID)
	return sale, nil
}

func (s *Session) UpdateSale(ctx context.Context, saleID string, input resdomain.SaleInput) (*resdomain.Sale, error) {
	sale, err := s.services.Sales.Update(ctx, s.Token(), saleID, input)
	if err != nil {
		return nil, err
	}
	s.afterMutation("sales", "updated", saleID)
	return sale, nil
}

// DeleteSale deletes the sale and clears it from the selection when it was selected.
func (s *Session) DeleteSale(ctx context.Context, saleID string) error {
	if err := s.services.Sales.Delete(ctx, s.Token(), saleID); err != nil {
		return err
	}
	s.store.Update(func(tx *selection.Tx) {
		if current := tx.Get(selection.ScopeSale); current != nil && current.ID == saleID {
			tx.Reset(selection.ScopeSale)
		}
	})
	s.afterMutation("sales", "deleted", saleID)
	return nil
}

// RecordPayment registers a payment against saleID, defaulting to the selected sale.
func (s *Session) RecordPayment(ctx context.Context, saleID string, input resdomain.PaymentInput) (*resdomain.Payment, error) {
	if strings.TrimSpace(saleID) == "" {
		saleID = s.store.Snapshot().ID(selection.ScopeSale)
	}
	payment, err := s.services.Payments.Create(ctx, s.Token(), map[string]string{"saleId": saleID}, input)
	if err != nil {
		return nil, err
	}
	s.afterMutation("payments", "created", payment.ID)
	return payment, nil
}

func (s *Session) SendMessage(ctx context.Context, conversationID string, input resdomain.MessageInput) (*resdomain.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		conversationID = s.store.Snapshot().ID(selection.ScopeConversation)
	}
	message, err := s.services.Messages.Send(ctx, s.Token(), conversationID, input)
	if err != nil {
		return nil, err
	}
	s.afterMutation("messages", "created", message.ID)
	return message, nil
}

// AttachToSale links a conversation attachment to a sale.
func (s *Session) AttachToSale(ctx context.Context, saleID, attachmentID string) (*resdomain.Attachment, error) {
	attachment, err := s.services.Sales.AttachFile(ctx, s.Token(), saleID, attachmentID)
	if err != nil {
		return nil, err
	}
	s.afterMutation("attachments", "updated", attachmentID)
	return attachment, nil
}

// afterMutation invalidates every cache prefix the write can affect and re-reads
// this session's views so the visible ones refetch.
func (s *Session) afterMutation(entity, action, resourceID string) {
	invalidated := 0
	for _, prefix := range domain.InvalidationPrefixes(entity) {
		invalidated += s.client.Invalidate(prefix)
	}
	s.logger.Info("dashboard mutation applied",
		slog.String("entity", entity),
		slog.String("action", action),
		slog.String("resourceId", resourceID),
		slog.Int("invalidated", invalidated),
	)
	s.Refresh()
}
