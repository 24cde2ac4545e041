package mail

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset" // ISO-8859-1 and friends are common in bank mail
	gomail "github.com/emersion/go-message/mail"
)

// Parse reads an RFC 5322 message and keeps its first HTML and first plain-text parts.
func Parse(r io.Reader) (Message, error) {
	mr, err := gomail.CreateReader(r)
	if err != nil && (mr == nil || !message.IsUnknownCharset(err)) {
		return Message{}, fmt.Errorf("reading message: %w", err)
	}
	defer mr.Close()

	var msg Message
	msg.Subject, err = mr.Header.Subject()
	if err != nil {
		msg.Subject = mr.Header.Get("Subject")
	}
	msg.From = mr.Header.Get("From")
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].String()
	}
	if date, err := mr.Header.Date(); err == nil {
		msg.Received = date
	}

	for {
		p, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && (p == nil || !message.IsUnknownCharset(err)) {
			return Message{}, fmt.Errorf("reading message part: %w", err)
		}

		h, ok := p.Header.(*gomail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(p.Body)
		if err != nil {
			return Message{}, fmt.Errorf("reading %s body: %w", contentType, err)
		}

		switch strings.ToLower(contentType) {
		case string(ContentHTML):
			if msg.HTMLBody == "" {
				msg.HTMLBody = string(body)
			}
		case string(ContentText), "":
			if msg.TextBody == "" {
				msg.TextBody = string(body)
			}
		}
	}
	return msg, nil
}
