package types

// Message categories shown to the operator.
const (
	CategorySuccess = "success"
	CategoryWarning = "warning"
)

// Decision reasons attached to every toggle result.
const (
	ReasonEntered         = "entered"
	ReasonExited          = "exited"
	ReasonNoAccess        = "no_access"
	ReasonWrongPlace      = "wrong_place"
	ReasonAlreadyActive   = "already_active"
	ReasonOutstandingLoan = "outstanding_loan"
	ReasonUnknownUser     = "unknown_user"
	ReasonInvalidPIN      = "invalid_pin"

	// Audit only; an unknown place is an error, not a Result.
	ReasonUnknownPlace = "unknown_place"
)

type Message struct {
	Text     string `json:"text"`
	Category string `json:"category"`
}

// Result is a business outcome meant for direct display. A rejected toggle
// is a Result with Success=false, never an error.
type Result struct {
	Success bool    `json:"success"`
	Reason  string  `json:"reason"`
	Message Message `json:"message"`
}

// ToggleRequest is what a badge reader (or the place's form) submits.
type ToggleRequest struct {
	PlaceID int64  `json:"-"`
	Key     string `json:"key"`
	Code    string `json:"code"`
	PIN     string `json:"pin"`
}

type RotateKeyResponse struct {
	PlaceID int64  `json:"place_id"`
	Key     string `json:"key"`
}
