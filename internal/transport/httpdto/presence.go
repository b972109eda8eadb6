package httpdto

// PresenceDTO reports whether a staff member has a live connection.
type PresenceDTO struct {
	StaffID string `json:"staff_id"`
	Online  bool   `json:"online"`
}

type TypingPayload struct {
	ChatID  string `json:"chat_id"`
	StaffID string `json:"staff_id"`
}

type PresencePayload struct {
	StaffID string `json:"staff_id"`
}
