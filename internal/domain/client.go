// Package domain contains entity without logic, just meta-data
package domain

import "github.com/google/uuid"

// ClientID identifies one open connection. It is minted by the transport
// at connect time and never reused while that connection is open.
type ClientID string

func NewClientID() ClientID {
	return ClientID(uuid.NewString())
}

// Short returns the id truncated for human-readable notification text.
func (id ClientID) Short() string {
	s := string(id)
	if len(s) > 8 {
		return s[:8]
	}
	return s
}
