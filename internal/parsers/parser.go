// Package parsers turns bank notification emails into transactions. Each
// institution has its own Strategy; a Registry routes a message to the
// first strategy that claims it.
package parsers

import (
	"errors"
	"fmt"
	"time"

	"github.com/cleared-dev/mailledger/internal/mail"
	"github.com/cleared-dev/mailledger/internal/model"
)

var (
	// ErrUnrecognizedSender means no registered strategy claims the message.
	ErrUnrecognizedSender = errors.New("unrecognized sender")
	// ErrUnparseable means a strategy claimed the message but could not extract
	// the required fields.
	ErrUnparseable = errors.New("unparseable message")
)

// Strategy extracts transactions from one institution's notification emails.
//
// CanParse must be side-effect free and must treat malformed input as "not
// mine". Parse is only called after CanParse returned true; it returns a
// transaction without GlobalID, Notes or Category, or an *UnparseableError.
type Strategy interface {
	Institution() string
	CanParse(msg mail.Message) bool
	Parse(msg mail.Message) (model.Transaction, error)
}

// UnparseableError records why a claimed message could not be parsed.
type UnparseableError struct {
	Institution string
	UID         string
	Subject     string
	Reason      string
}

func (e *UnparseableError) Error() string {
	return fmt.Sprintf("%s: message %s (subject %q): %s", e.Institution, e.UID, e.Subject, e.Reason)
}

// Unwrap makes errors.Is(err, ErrUnparseable) hold.
func (e *UnparseableError) Unwrap() error { return ErrUnparseable }

func unparseable(institution string, msg mail.Message, format string, args ...any) *UnparseableError {
	return &UnparseableError{
		Institution: institution,
		UID:         msg.UID,
		Subject:     msg.Subject,
		Reason:      fmt.Sprintf(format, args...),
	}
}

// receivedAt is the fallback timestamp when a body carries no usable date.
func receivedAt(msg mail.Message, loc *time.Location) (time.Time, bool) {
	if msg.Received.IsZero() {
		return time.Time{}, false
	}
	return msg.Received.In(loc).Truncate(time.Minute), true
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
