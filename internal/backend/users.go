package backend

import (
	"context"
	"net/http"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/normalize"
)

// UsersClient: клиент сервиса пользователей.
type UsersClient struct {
	client     *Client
	normalizer *normalize.Normalizer
}

var _ domain.UsersService = (*UsersClient)(nil)

// NewUsersClient создаёт клиент сервиса пользователей.
func NewUsersClient(client *Client, normalizer *normalize.Normalizer) *UsersClient {
	if normalizer == nil {
		normalizer = normalize.New(nil)
	}
	return &UsersClient{client: client, normalizer: normalizer}
}

// GetProfile возвращает профиль пользователя.
func (c *UsersClient) GetProfile(ctx context.Context, session domain.Session, userID string) (domain.User, error) {
	raw, err := c.client.Do(ctx, OpGetProfile, session, http.MethodGet, "/users/"+pathEscape(userID), nil)
	if err != nil {
		return domain.User{}, Wrap(OpGetProfile, err)
	}
	user, err := c.normalizer.User(raw)
	if err != nil {
		return domain.User{}, Wrap(OpGetProfile, err)
	}
	return user, nil
}

// UpdateProfile сохраняет профиль. Если сервис не вернул тело, возвращается отправленный профиль.
func (c *UsersClient) UpdateProfile(ctx context.Context, session domain.Session, user domain.User) (domain.User, error) {
	if user.ID == "" {
		user.ID = session.UserID
	}
	raw, err := c.client.Do(ctx, OpUpdateProfile, session, http.MethodPut, "/users/"+pathEscape(user.ID), user)
	if err != nil {
		return domain.User{}, Wrap(OpUpdateProfile, err)
	}
	if raw == nil {
		return user, nil
	}
	updated, err := c.normalizer.User(raw)
	if err != nil {
		return user, nil
	}
	return updated, nil
}

// Login проверяет учётные данные и возвращает новую сессию с профилем.
func (c *UsersClient) Login(ctx context.Context, creds domain.Credentials) (domain.Session, domain.User, error) {
	raw, err := c.client.Do(ctx, OpLogin, domain.AnonymousSession(), http.MethodPost, "/auth/login", creds)
	if err != nil {
		return domain.Session{}, domain.User{}, Wrap(OpLogin, err)
	}
	session, user, err := c.normalizer.Session(raw)
	if err != nil {
		return domain.Session{}, domain.User{}, Wrap(OpLogin, err)
	}
	if user.Email == "" {
		user.Email = creds.Email
	}
	return session, user, nil
}

// CompleteRegistration дозаполняет профиль после первого входа.
func (c *UsersClient) CompleteRegistration(ctx context.Context, session domain.Session, reg domain.Registration) (domain.User, error) {
	if !session.Authenticated() {
		return domain.User{}, Wrap(OpCompleteRegistration, domain.ErrUnauthenticated)
	}
	raw, err := c.client.Do(ctx, OpCompleteRegistration, session, http.MethodPost,
		"/users/"+pathEscape(session.UserID)+"/complete-registration", reg)
	if err != nil {
		return domain.User{}, Wrap(OpCompleteRegistration, err)
	}
	user, err := c.normalizer.User(raw)
	if err != nil {
		user = domain.User{
			ID:       session.UserID,
			Name:     reg.Name,
			Phone:    reg.Phone,
			Shipping: reg.Shipping,
			Role:     session.Role,
		}
	}
	user.Registered = true
	return user, nil
}
