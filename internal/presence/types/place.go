package types

// Place is a physical location with access-controlled entry.
//
// ParentID is set for places nested inside another place (a lab inside a
// building). Nothing resolves the hierarchy yet; see service.PlaceHierarchy.
type Place struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	AccessKey string `json:"-"`
	ParentID  *int64 `json:"parent_id,omitempty"`
}

// User is someone who badges in and out with a code/PIN pair.
type User struct {
	ID          int64  `json:"id"`
	Code        string `json:"code"`
	PINHash     []byte `json:"-"` // bcrypt
	DisplayName string `json:"display_name,omitempty"`
}

// AccessGrant authorizes a user to enter a place. Its existence is the
// whole signal; there are no roles or levels.
type AccessGrant struct {
	PlaceID int64
	UserID  int64
}
