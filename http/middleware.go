package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"ticketing/entity"
)

const (
	userIDHeader   = "X-User-ID"
	userContextKey = "user"
)

// identityMiddleware resolves the caller. With a JWT secret configured the caller is the
// "sub" claim of a HS256 bearer token, otherwise the X-User-ID header is trusted.
// The role always comes from the stored user.
func (s Server) identityMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, err := s.callerID(c.Request())
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
			}

			user, err := s.usersRepo.Get(c.Request().Context(), userID)
			if errors.Is(err, entity.ErrNotFound) {
				return echo.NewHTTPError(http.StatusUnauthorized, "unknown user")
			}
			if err != nil {
				return fmt.Errorf("could not load user: %w", err)
			}

			c.Set(userContextKey, user)

			ctx := log.ToContext(c.Request().Context(), log.FromContext(c.Request().Context()).WithField("user_id", user.UserID))
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

func (s Server) callerID(r *http.Request) (string, error) {
	if s.jwtSecret == "" {
		userID := strings.TrimSpace(r.Header.Get(userIDHeader))
		if userID == "" {
			return "", fmt.Errorf("missing %s header", userIDHeader)
		}
		return userID, nil
	}

	auth := r.Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return "", errors.New("missing bearer token")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(
		strings.TrimPrefix(auth, "Bearer "),
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return []byte(s.jwtSecret), nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil || !token.Valid {
		return "", errors.New("invalid token")
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("token has no subject")
	}

	return sub, nil
}

func currentUser(c echo.Context) (entity.User, error) {
	user, ok := c.Get(userContextKey).(entity.User)
	if !ok {
		return entity.User{}, echo.NewHTTPError(http.StatusUnauthorized, "not authenticated")
	}
	return user, nil
}

func currentActor(c echo.Context) (entity.Actor, error) {
	user, err := currentUser(c)
	if err != nil {
		return entity.Actor{}, err
	}
	return user.Actor(), nil
}

// toHTTPError maps domain errors to responses. Anything unknown is left to the
// default handler and ends up as 500.
func toHTTPError(err error) error {
	var status int
	switch {
	case errors.Is(err, entity.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrSoldOut),
		errors.Is(err, entity.ErrDuplicateBooking),
		errors.Is(err, entity.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, entity.ErrUnauthorized):
		status = http.StatusForbidden
	case errors.Is(err, entity.ErrRemoteUnavailable):
		status = http.StatusServiceUnavailable
	default:
		return err
	}

	return echo.NewHTTPError(status, err.Error()).SetInternal(err)
}
