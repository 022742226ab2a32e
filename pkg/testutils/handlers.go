package testutils

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
	"github.com/watchlog/watchlog/pkg/auth"
	"github.com/watchlog/watchlog/pkg/models"
)

type handler struct {
	db          *bun.DB
	authService *auth.Service
}

type createUserRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// createUserResponse carries a ready-to-use token so browser tests can skip
// the login form.
type createUserResponse struct {
	ID    int    `json:"id"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// createUser creates a user and issues a session token for it.
// POST /test/users.
func (h *handler) createUser(c echo.Context) error {
	ctx := c.Request().Context()

	var req createUserRequest
	if err := c.Bind(&req); err != nil {
		return errors.WithStack(err)
	}

	user, err := h.authService.SignUp(ctx, req.Email, req.Password)
	if err != nil {
		return errors.WithStack(err)
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		return errors.WithStack(err)
	}

	return c.JSON(http.StatusCreated, createUserResponse{
		ID:    user.ID,
		Email: user.Email,
		Token: token,
	})
}

type deleteResponse struct {
	Deleted int `json:"deleted"`
}

// deleteAllUsers deletes every user. Entries and their associations go with
// them through ON DELETE CASCADE.
// DELETE /test/users.
func (h *handler) deleteAllUsers(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.db.NewDelete().
		Model((*models.User)(nil)).
		Where("1=1").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to delete users")
	}

	deleted, _ := result.RowsAffected()

	return c.JSON(http.StatusOK, deleteResponse{Deleted: int(deleted)})
}

// deleteAllGenres clears the shared genre table.
// DELETE /test/genres.
func (h *handler) deleteAllGenres(c echo.Context) error {
	ctx := c.Request().Context()

	result, err := h.db.NewDelete().
		Model((*models.Genre)(nil)).
		Where("1=1").
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to delete genres")
	}

	deleted, _ := result.RowsAffected()

	return c.JSON(http.StatusOK, deleteResponse{Deleted: int(deleted)})
}
