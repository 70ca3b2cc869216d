// Package queue consumes scoring trigger messages. Delivery is
// at-least-once; malformed messages are dropped by the caller after a
// ValidationError, never retried.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/sells-group/leadqual/internal/model"
)

// RawMessage is one received queue message before parsing.
type RawMessage struct {
	ID            string
	Body          string
	ReceiptHandle string
}

// ValidationError marks a message that can never become valid. The
// consumer deletes such messages instead of letting them redeliver.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("queue: invalid trigger: %s", e.Reason)
}

// ParseTrigger decodes a trigger message body. Both fields are required;
// anything else is a ValidationError.
func ParseTrigger(body string) (*model.TriggerMessage, error) {
	var msg model.TriggerMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, &ValidationError{Reason: "malformed JSON: " + err.Error()}
	}
	if msg.LeadID == "" {
		return nil, &ValidationError{Reason: "missing leadId"}
	}
	if msg.Ref == "" {
		return nil, &ValidationError{Reason: "missing ref"}
	}
	return &msg, nil
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
