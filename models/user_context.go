package models

// UserContext is the untrusted, per-attempt context a claimer supplies with /verify.
// It is never persisted.
type UserContext struct {
	Address     string   `json:"address"`
	Answer      string   `json:"answer,omitempty"`
	Latitude    *float64 `json:"latitude,omitempty"`
	Longitude   *float64 `json:"longitude,omitempty"`
	DiscordID   string   `json:"discordId,omitempty"`
	BrowserInfo string   `json:"browserInfo,omitempty"`
}

// HasCoords reports whether both coordinates were supplied. The frontend sends 0,0
// when location access is denied, which is treated as absent.
func (u UserContext) HasCoords() bool {
	if u.Latitude == nil || u.Longitude == nil {
		return false
	}
	return !(*u.Latitude == 0 && *u.Longitude == 0)
}
