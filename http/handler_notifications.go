package http

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"ticketing/entity"
)

func (s Server) GetNotifications(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}

	notifications, err := s.notifications.ListFor(c.Request().Context(), actor.UserID)
	if err != nil {
		return toHTTPError(err)
	}
	if notifications == nil {
		notifications = []entity.Notification{}
	}

	return c.JSON(http.StatusOK, notifications)
}

func (s Server) DeleteNotification(c echo.Context) error {
	actor, err := currentActor(c)
	if err != nil {
		return err
	}

	if err := s.notifications.Delete(c.Request().Context(), actor, c.Param("id")); err != nil {
		return toHTTPError(err)
	}

	return c.NoContent(http.StatusNoContent)
}
