package backend

import (
	"context"
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/normalize"
)

// SupportClient: клиент сервиса обращений. Доступен только ролям поддержки.
type SupportClient struct {
	client     *Client
	normalizer *normalize.Normalizer
}

var _ domain.SupportService = (*SupportClient)(nil)

// NewSupportClient создаёт клиент сервиса обращений.
func NewSupportClient(client *Client, normalizer *normalize.Normalizer) *SupportClient {
	if normalizer == nil {
		normalizer = normalize.New(nil)
	}
	return &SupportClient{client: client, normalizer: normalizer}
}

func (c *SupportClient) authorize(op string, session domain.Session) error {
	if !session.Authenticated() {
		return Wrap(op, domain.ErrUnauthenticated)
	}
	if !session.CanHandleSupport() {
		return Wrap(op, domain.ErrForbidden)
	}
	return nil
}

// Inbox возвращает входящие обращения.
func (c *SupportClient) Inbox(ctx context.Context, session domain.Session) ([]domain.ContactMessage, error) {
	if err := c.authorize(OpInbox, session); err != nil {
		return nil, err
	}
	raw, err := c.client.Do(ctx, OpInbox, session, http.MethodGet, "/contact", nil)
	if err != nil {
		return nil, Wrap(OpInbox, err)
	}
	return c.normalizer.ContactMessages(raw), nil
}

// MarkRead помечает обращение прочитанным.
func (c *SupportClient) MarkRead(ctx context.Context, session domain.Session, id string) error {
	if err := c.authorize(OpMarkRead, session); err != nil {
		return err
	}
	if _, err := c.client.Do(ctx, OpMarkRead, session, http.MethodPatch, "/contact/"+pathEscape(id)+"/read", nil); err != nil {
		return Wrap(OpMarkRead, err)
	}
	return nil
}

type replyRequest struct {
	Reply string `json:"reply"`
}

// Reply отправляет ответ на обращение.
func (c *SupportClient) Reply(ctx context.Context, session domain.Session, id, body string) error {
	if err := c.authorize(OpReply, session); err != nil {
		return err
	}
	if _, err := c.client.Do(ctx, OpReply, session, http.MethodPost, "/contact/"+pathEscape(id)+"/reply", replyRequest{Reply: body}); err != nil {
		return Wrap(OpReply, err)
	}
	return nil
}
