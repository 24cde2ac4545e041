// Package mail retrieves bank notification emails and exposes them as
// simplified messages for the parsers.
package mail

import (
	"errors"
	"fmt"
	"strings"
	"time"

	gomail "github.com/emersion/go-message/mail"
)

// ContentType is the MIME type of a message body.
type ContentType string

const (
	ContentHTML ContentType = "text/html"
	ContentText ContentType = "text/plain"
)

// Message is a raw email with headers and bodies as delivered.
type Message struct {
	UID      string
	From     string
	Subject  string
	Received time.Time
	HTMLBody string
	TextBody string
}

// ContentType reports the message's primary body type. HTML wins when both are present.
func (m Message) ContentType() ContentType {
	if m.HTMLBody != "" {
		return ContentHTML
	}
	return ContentText
}

// Body returns the primary body as delivered.
func (m Message) Body() string {
	if m.HTMLBody != "" {
		return m.HTMLBody
	}
	return m.TextBody
}

// SenderAddress returns the lower-cased address from the From header,
// or the lower-cased raw header when it cannot be parsed.
func (m Message) SenderAddress() string {
	if addr, err := gomail.ParseAddress(m.From); err == nil {
		return strings.ToLower(addr.Address)
	}
	return strings.ToLower(strings.TrimSpace(m.From))
}

// SenderDomain returns the part of the sender address after '@'.
func (m Message) SenderDomain() string {
	addr := m.SenderAddress()
	if i := strings.LastIndex(addr, "@"); i >= 0 {
		return strings.TrimRight(addr[i+1:], ">")
	}
	return ""
}

// Criteria selects which messages a Source returns: either unseen messages
// or messages received within an inclusive date range.
type Criteria struct {
	UnseenOnly bool
	Since      time.Time // first day, inclusive
	Until      time.Time // last day, inclusive
}

// Unseen selects messages not yet retrieved by a previous sync.
func Unseen() Criteria {
	return Criteria{UnseenOnly: true}
}

// Between selects messages received on any day from start through end.
func Between(start, end time.Time) Criteria {
	return Criteria{Since: startOfDay(start), Until: startOfDay(end)}
}

// Validate checks that a date-range criteria is well formed.
func (c Criteria) Validate() error {
	if c.UnseenOnly {
		return nil
	}
	if c.Since.IsZero() || c.Until.IsZero() {
		return errors.New("date range requires both start and end")
	}
	if c.Until.Before(c.Since) {
		return fmt.Errorf("end date %s is before start date %s", c.Until.Format("2006-01-02"), c.Since.Format("2006-01-02"))
	}
	return nil
}

// Contains reports whether t falls within the criteria's date range.
// Unseen criteria contain every time.
func (c Criteria) Contains(t time.Time) bool {
	if c.UnseenOnly {
		return true
	}
	t = t.In(c.Since.Location())
	return !t.Before(c.Since) && t.Before(c.Until.AddDate(0, 0, 1))
}

// String describes the criteria for logs.
func (c Criteria) String() string {
	if c.UnseenOnly {
		return "unseen"
	}
	return c.Since.Format("2006-01-02") + ".." + c.Until.Format("2006-01-02")
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Source yields raw messages matching criteria. A returned error means the
// whole retrieval failed (connection, authentication, unreadable store).
type Source interface {
	Fetch(c Criteria) ([]Message, error)
}
