package entity

type Role string

const (
	RoleUser      Role = "user"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
	RoleSystem    Role = "system"
)

type User struct {
	UserID               string `json:"user_id" db:"user_id"`
	Email                string `json:"email" db:"email"`
	Name                 string `json:"name" db:"name"`
	Role                 Role   `json:"role" db:"role"`
	NotificationsEnabled bool   `json:"notifications_enabled" db:"notifications_enabled"`
}

// Actor is whoever issues an operation: an authenticated user or the service itself.
type Actor struct {
	UserID string
	Role   Role
}

var SystemActor = Actor{UserID: "system", Role: RoleSystem}

func (u User) Actor() Actor {
	return Actor{UserID: u.UserID, Role: u.Role}
}

func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

func (a Actor) IsSystem() bool {
	return a.Role == RoleSystem
}

// CanManageBooking reports whether the actor may cancel or refund the booking.
func (a Actor) CanManageBooking(b Booking, show Show) bool {
	if a.IsAdmin() {
		return true
	}
	if a.UserID == "" {
		return false
	}
	return a.UserID == b.UserID || a.UserID == show.OrganizerID
}

// CanPayFor reports whether the actor may pay for the booking.
func (a Actor) CanPayFor(b Booking) bool {
	return a.IsAdmin() || (a.UserID != "" && a.UserID == b.UserID)
}
