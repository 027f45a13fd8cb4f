package models

import (
	"fmt"
	"strings"
)

// AskRequest is the body of an ask call.
type AskRequest struct {
	Question string `json:"question"`
}

// Validate trims the question and rejects an empty one.
func (r *AskRequest) Validate() error {
	r.Question = strings.TrimSpace(r.Question)
	if r.Question == "" {
		return fmt.Errorf("question cannot be empty")
	}
	return nil
}
