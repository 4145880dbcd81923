package http

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"ticketing/entity"
)

type postShowRequest struct {
	Title       string       `json:"title"`
	Venue       string       `json:"venue"`
	StartTime   time.Time    `json:"start_time"`
	MaxCapacity int          `json:"max_capacity"`
	TicketPrice entity.Money `json:"ticket_price"`
}

type postShowResponse struct {
	ShowID string `json:"show_id"`
}

type showResponse struct {
	entity.Show
	AvailableTickets int `json:"available_tickets"`
}

func (s Server) PostShows(c echo.Context) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}
	if user.Role != entity.RoleOrganizer && user.Role != entity.RoleAdmin {
		return echo.NewHTTPError(http.StatusForbidden, "only organizers can create shows")
	}

	var request postShowRequest
	if err := c.Bind(&request); err != nil {
		return err
	}

	show := entity.Show{
		ShowID:      uuid.NewString(),
		Title:       request.Title,
		Venue:       request.Venue,
		StartTime:   request.StartTime,
		MaxCapacity: request.MaxCapacity,
		TicketPrice: request.TicketPrice,
		OrganizerID: user.UserID,
	}
	if err := show.Validate(); err != nil {
		return toHTTPError(err)
	}

	if err := s.showsRepo.Store(c.Request().Context(), show); err != nil {
		return fmt.Errorf("could not store show: %w", err)
	}

	return c.JSON(http.StatusCreated, postShowResponse{ShowID: show.ShowID})
}

func (s Server) GetShow(c echo.Context) error {
	show, err := s.showsRepo.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return toHTTPError(err)
	}

	available, err := s.inventory.AvailableTickets(c.Request().Context(), show.ShowID)
	if err != nil {
		return fmt.Errorf("could not count available tickets: %w", err)
	}

	return c.JSON(http.StatusOK, showResponse{Show: show, AvailableTickets: available})
}
