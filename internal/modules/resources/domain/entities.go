package domain

import "time"

// Store is a business location that owns copypoints and integrations.
type Store struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Address   string    `json:"address,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Copypoint is a service counter inside a store.
type Copypoint struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"storeId"`
	Name      string    `json:"name"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

type SaleStatus string

const (
	SaleStatusPending   SaleStatus = "PENDING"
	SaleStatusPaid      SaleStatus = "PAID"
	SaleStatusCancelled SaleStatus = "CANCELLED"
)

// Sale is an order taken at a copypoint.
type Sale struct {
	ID          string     `json:"id"`
	CopypointID string     `json:"copypointId"`
	Status      SaleStatus `json:"status"`
	Total       float64    `json:"total"`
	Paid        float64    `json:"paid"`
	Description string     `json:"description,omitempty"`
	Items       []SaleItem `json:"items,omitempty"`
	CreatedAt   time.Time  `json:"createdAt,omitempty"`
	UpdatedAt   time.Time  `json:"updatedAt,omitempty"`
}

type SaleItem struct {
	Description string  `json:"description"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unitPrice"`
}

// Balance is the amount still owed on the sale.
func (s Sale) Balance() float64 {
	return s.Total - s.Paid
}

// Payment is a settlement recorded against a sale.
type Payment struct {
	ID        string    `json:"id"`
	SaleID    string    `json:"saleId"`
	Amount    float64   `json:"amount"`
	Method    string    `json:"method"`
	Reference string    `json:"reference,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitempty"`
}

// Conversation is a customer chat attached to a copypoint.
type Conversation struct {
	ID            string    `json:"id"`
	CopypointID   string    `json:"copypointId"`
	Channel       string    `json:"channel,omitempty"`
	Contact       string    `json:"contact,omitempty"`
	LastMessage   string    `json:"lastMessage,omitempty"`
	UnreadCount   int       `json:"unreadCount"`
	LastMessageAt time.Time `json:"lastMessageAt,omitempty"`
}

// Message belongs to a conversation.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	Direction      string    `json:"direction"`
	Body           string    `json:"body"`
	AttachmentID   string    `json:"attachmentId,omitempty"`
	SentAt         time.Time `json:"sentAt,omitempty"`
}

// Attachment is a file received in a conversation; it can be linked to a sale.
type Attachment struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	SaleID         string    `json:"saleId,omitempty"`
	FileName       string    `json:"fileName"`
	ContentType    string    `json:"contentType,omitempty"`
	URL            string    `json:"url,omitempty"`
	Pages          int       `json:"pages,omitempty"`
	CreatedAt      time.Time `json:"createdAt,omitempty"`
}

// Integration is a third-party channel (messaging provider, payment terminal) enabled for a store.
type Integration struct {
	ID       string            `json:"id"`
	StoreID  string            `json:"storeId"`
	Provider string            `json:"provider"`
	Enabled  bool              `json:"enabled"`
	Settings map[string]string `json:"settings,omitempty"`
}

// SaleInput is the body accepted when creating or updating a sale.
type SaleInput struct {
	CopypointID string     `json:"copypointId,omitempty"`
	Status      SaleStatus `json:"status,omitempty"`
	Total       float64    `json:"total"`
	Description string     `json:"description,omitempty"`
	Items       []SaleItem `json:"items,omitempty"`
}

type PaymentInput struct {
	Amount    float64 `json:"amount"`
	Method    string  `json:"method"`
	Reference string  `json:"reference,omitempty"`
}

type MessageInput struct {
	Body         string `json:"body"`
	AttachmentID string `json:"attachmentId,omitempty"`
}
