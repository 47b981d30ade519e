package shared

import "context"

// TimezoneResolver supplies the IANA timezone a user configured. It is an
// external collaborator: an empty string or an unknown identifier is passed
// on as is and resolves to UTC downstream.
type TimezoneResolver interface {
	Timezone(ctx context.Context, userID UserID) (string, error)
}
