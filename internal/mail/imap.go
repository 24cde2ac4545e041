package mail

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// IMAPConfig holds connection settings for an IMAP mailbox. The password is
// supplied by the caller; nothing is read from the environment here.
type IMAPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Folder   string
	Timeout  time.Duration
}

// IMAPSource fetches messages over IMAPS. Fetching full bodies sets \Seen on
// the server, so a message is returned as unseen at most once.
type IMAPSource struct {
	cfg IMAPConfig
}

// NewIMAPSource creates an IMAPSource, applying defaults for port and folder.
func NewIMAPSource(cfg IMAPConfig) *IMAPSource {
	if cfg.Port == 0 {
		cfg.Port = 993
	}
	if cfg.Folder == "" {
		cfg.Folder = "INBOX"
	}
	return &IMAPSource{cfg: cfg}
}

// Fetch connects, searches the folder for c and downloads matching messages.
func (s *IMAPSource) Fetch(c Criteria) ([]Message, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if s.cfg.Host == "" {
		return nil, errors.New("imap host is not configured")
	}

	dialer := &net.Dialer{Timeout: s.cfg.Timeout}
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	cl, err := client.DialWithDialerTLS(dialer, addr, &tls.Config{ServerName: s.cfg.Host})
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", addr, err)
	}
	defer cl.Logout()
	cl.Timeout = s.cfg.Timeout

	if err := cl.Login(s.cfg.Username, s.cfg.Password); err != nil {
		return nil, fmt.Errorf("logging in as %s: %w", s.cfg.Username, err)
	}
	if _, err := cl.Select(s.cfg.Folder, false); err != nil {
		return nil, fmt.Errorf("selecting folder %s: %w", s.cfg.Folder, err)
	}

	uids, err := cl.UidSearch(searchCriteria(c))
	if err != nil {
		return nil, fmt.Errorf("searching %s: %w", s.cfg.Folder, err)
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	fetched := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- cl.UidFetch(seqset, items, fetched)
	}()

	var msgs []Message
	for m := range fetched {
		body := m.GetBody(section)
		if body == nil {
			continue
		}
		msg, err := Parse(body)
		if err != nil {
			msg = Message{}
		}
		msg.UID = strconv.FormatUint(uint64(m.Uid), 10)
		if msg.Received.IsZero() {
			msg.Received = m.InternalDate
		}
		if !c.Contains(msg.Received) {
			continue
		}
		msgs = append(msgs, msg)
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	return msgs, nil
}

// searchCriteria maps Criteria onto an IMAP SEARCH. IMAP BEFORE is
// exclusive, so the inclusive end date is pushed out by one day.
func searchCriteria(c Criteria) *imap.SearchCriteria {
	sc := imap.NewSearchCriteria()
	if c.UnseenOnly {
		sc.WithoutFlags = []string{imap.SeenFlag}
		return sc
	}
	sc.Since = c.Since
	sc.Before = c.Until.AddDate(0, 0, 1)
	return sc
}
