package oauth

import (
	"github.com/jw6ventures/casefile/internal/store"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/drive/v3"
)

// GoogleConfig returns the oauth2 configuration for Google with no scopes
// set; scopes are chosen per connection kind.
func GoogleConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Endpoint:     google.Endpoint,
	}
}

func scopesFor(kind store.ConnectionKind) []string {
	base := []string{"openid", "email"}
	switch kind {
	case store.KindDrive:
		return append(base, drive.DriveReadonlyScope)
	case store.KindCalendar:
		return append(base, calendar.CalendarEventsScope)
	}
	return base
}
