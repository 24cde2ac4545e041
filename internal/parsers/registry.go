package parsers

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cleared-dev/mailledger/internal/mail"
	"github.com/cleared-dev/mailledger/internal/model"
)

// Registry holds strategies in registration order. When more than one
// strategy claims a message the first registered wins.
type Registry struct {
	strategies []Strategy
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends a strategy. Panics on a duplicate institution.
func (r *Registry) Register(s Strategy) {
	for _, existing := range r.strategies {
		if strings.EqualFold(existing.Institution(), s.Institution()) {
			panic("duplicate parser institution: " + s.Institution())
		}
	}
	r.strategies = append(r.strategies, s)
}

// DefaultRegistry returns the built-in strategies. Dates in message bodies
// are read in loc.
func DefaultRegistry(loc *time.Location) *Registry {
	r := NewRegistry()
	r.Register(NewBAC(loc))
	r.Register(NewDavibank(loc))
	r.Register(NewDavivienda(loc))
	return r
}

// Institutions lists registered institutions in order.
func (r *Registry) Institutions() []string {
	names := make([]string, len(r.strategies))
	for i, s := range r.strategies {
		names[i] = s.Institution()
	}
	return names
}

// Get returns the strategy for institution (case-insensitive), or nil.
func (r *Registry) Get(institution string) Strategy {
	for _, s := range r.strategies {
		if strings.EqualFold(s.Institution(), institution) {
			return s
		}
	}
	return nil
}

// Classify returns the first strategy that claims msg, or ErrUnrecognizedSender.
func (r *Registry) Classify(msg mail.Message) (Strategy, error) {
	for _, s := range r.strategies {
		if claims(s, msg) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("%w: %s (subject %q)", ErrUnrecognizedSender, msg.SenderAddress(), msg.Subject)
}

// Claimants lists every institution whose strategy claims msg. More than one
// entry means ownership is decided by registration order.
func (r *Registry) Claimants(msg mail.Message) []string {
	var names []string
	for _, s := range r.strategies {
		if claims(s, msg) {
			names = append(names, s.Institution())
		}
	}
	return names
}

// ClassifyAndParse routes msg to its strategy and parses it. Errors wrap
// either ErrUnrecognizedSender or ErrUnparseable.
func (r *Registry) ClassifyAndParse(msg mail.Message) (model.Transaction, error) {
	s, err := r.Classify(msg)
	if err != nil {
		return model.Transaction{}, err
	}
	return parse(s, msg)
}

// claims calls CanParse, treating a panic as "not mine".
func claims(s Strategy, msg mail.Message) (ok bool) {
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return s.CanParse(msg)
}

// parse calls Parse and enforces the strategy contract: panics and invalid
// results become *UnparseableError, and the institution is the strategy's.
func parse(s Strategy, msg mail.Message) (txn model.Transaction, err error) {
	defer func() {
		if p := recover(); p != nil {
			txn = model.Transaction{}
			err = unparseable(s.Institution(), msg, "parser panic: %v", p)
		}
	}()

	txn, err = s.Parse(msg)
	if err != nil {
		var uerr *UnparseableError
		if errors.As(err, &uerr) {
			return model.Transaction{}, err
		}
		return model.Transaction{}, unparseable(s.Institution(), msg, "%v", err)
	}

	txn.GlobalID = ""
	txn.Notes = ""
	txn.Category = ""
	txn.Institution = s.Institution()
	txn.Timestamp = txn.Timestamp.Truncate(time.Minute)
	if err := txn.Validate(); err != nil {
		return model.Transaction{}, unparseable(s.Institution(), msg, "invalid transaction: %v", err)
	}
	return txn, nil
}
