// Package ingest runs the pipeline from mailbox to ledger: fetch messages,
// parse them with the registered strategies, drop transactions already in
// the ledger and persist the rest.
package ingest

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cleared-dev/mailledger/internal/id"
	"github.com/cleared-dev/mailledger/internal/mail"
	"github.com/cleared-dev/mailledger/internal/model"
	"github.com/cleared-dev/mailledger/internal/parsers"
)

var (
	// ErrFetchFailed means the mail source could not be read; nothing was persisted.
	ErrFetchFailed = errors.New("fetching messages failed")
	// ErrDuplicateTransaction marks a message whose transaction is already stored.
	ErrDuplicateTransaction = errors.New("duplicate transaction")
)

// Phase is a stage of a run.
type Phase string

const (
	PhaseFetching   Phase = "FETCHING"
	PhaseParsing    Phase = "PARSING"
	PhaseDeduping   Phase = "DEDUPING"
	PhasePersisting Phase = "PERSISTING"
	PhaseDone       Phase = "DONE"
)

// Outcome is what happened to one message.
type Outcome string

const (
	OutcomePersisted    Outcome = "persisted"
	OutcomeDuplicate    Outcome = "skipped-duplicate"
	OutcomeUnrecognized Outcome = "skipped-unrecognized"
	OutcomeUnparseable  Outcome = "error-unparseable"
)

// Ledger is the part of the ledger repository a run needs.
type Ledger interface {
	Exists(globalID string) (bool, error)
	Insert(txn model.Transaction) (bool, error)
}

// CategoryLookup returns the category learned for a merchant.
type CategoryLookup interface {
	Get(merchant string) (string, bool)
}

// MessageResult records the outcome for one fetched message.
type MessageResult struct {
	UID         string
	Institution string
	GlobalID    string
	Outcome     Outcome
	Err         error
}

// Result summarizes a run. Skipped is Duplicates + Unrecognized.
type Result struct {
	RunID        string
	Mode         string
	Processed    int
	Skipped      int
	Errors       int
	Duplicates   int
	Unrecognized int
	Messages     []MessageResult
}

// Detail is a short human-readable breakdown for run logs.
func (r Result) Detail() string {
	return fmt.Sprintf("duplicates=%d unrecognized=%d unparseable=%d", r.Duplicates, r.Unrecognized, r.Errors)
}

func (r *Result) record(mr MessageResult) {
	r.Messages = append(r.Messages, mr)
	switch mr.Outcome {
	case OutcomePersisted:
		r.Processed++
	case OutcomeDuplicate:
		r.Duplicates++
		r.Skipped++
	case OutcomeUnrecognized:
		r.Unrecognized++
		r.Skipped++
	case OutcomeUnparseable:
		r.Errors++
	}
}

// Service orchestrates sync and backfill runs.
type Service struct {
	source     mail.Source
	registry   *parsers.Registry
	ledger     Ledger
	categories CategoryLookup
	log        zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithCategories makes new transactions pick up learned categories.
func WithCategories(c CategoryLookup) Option {
	return func(s *Service) { s.categories = c }
}

// WithLogger sets the run logger. The default discards output.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a Service.
func NewService(source mail.Source, registry *parsers.Registry, ledger Ledger, opts ...Option) *Service {
	s := &Service{
		source:   source,
		registry: registry,
		ledger:   ledger,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sync processes messages not seen by a previous run.
func (s *Service) Sync() (Result, error) {
	return s.run("sync", mail.Unseen())
}

// Backfill processes every message received from start through end,
// inclusive, whether or not it was seen before.
func (s *Service) Backfill(start, end time.Time) (Result, error) {
	c := mail.Between(start, end)
	if err := c.Validate(); err != nil {
		return Result{}, fmt.Errorf("invalid backfill range: %w", err)
	}
	return s.run("backfill "+c.String(), c)
}

// aborted keeps only the identity of a failed run; its counts are discarded.
func aborted(res Result) Result {
	return Result{RunID: res.RunID, Mode: res.Mode}
}

type candidate struct {
	msg mail.Message
	txn model.Transaction
}

func (s *Service) run(mode string, c mail.Criteria) (Result, error) {
	res := Result{RunID: uuid.NewString(), Mode: mode}
	log := s.log.With().Str("run_id", res.RunID).Str("mode", mode).Logger()
	start := time.Now()

	phase(log, PhaseFetching).Str("criteria", c.String()).Send()
	msgs, err := s.source.Fetch(c)
	if err != nil {
		log.Error().Err(err).Msg("fetch failed")
		return aborted(res), fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	phase(log, PhaseParsing).Int("messages", len(msgs)).Send()
	var parsed []candidate
	for _, msg := range msgs {
		txn, err := s.registry.ClassifyAndParse(msg)
		switch {
		case err == nil:
			parsed = append(parsed, candidate{msg: msg, txn: id.Assign(txn)})
		case errors.Is(err, parsers.ErrUnrecognizedSender):
			s.report(log, &res, MessageResult{UID: msg.UID, Outcome: OutcomeUnrecognized, Err: err})
		default:
			mr := MessageResult{UID: msg.UID, Outcome: OutcomeUnparseable, Err: err}
			var uerr *parsers.UnparseableError
			if errors.As(err, &uerr) {
				mr.Institution = uerr.Institution
			}
			s.report(log, &res, mr)
		}
	}

	phase(log, PhaseDeduping).Int("parsed", len(parsed)).Send()
	var fresh []candidate
	inRun := make(map[string]bool, len(parsed))
	for _, cand := range parsed {
		gid := cand.txn.GlobalID
		exists := inRun[gid]
		if !exists {
			if exists, err = s.ledger.Exists(gid); err != nil {
				log.Error().Err(err).Msg("checking ledger failed")
				return aborted(res), fmt.Errorf("checking ledger: %w", err)
			}
		}
		if exists {
			s.report(log, &res, duplicate(cand))
			continue
		}
		inRun[gid] = true
		fresh = append(fresh, cand)
	}

	phase(log, PhasePersisting).Int("new", len(fresh)).Send()
	for _, cand := range fresh {
		txn := cand.txn
		if s.categories != nil {
			if category, ok := s.categories.Get(txn.Merchant); ok {
				txn.Category = category
			}
		}
		inserted, err := s.ledger.Insert(txn)
		if err != nil {
			log.Error().Err(err).Str("global_id", txn.GlobalID).Msg("persisting failed")
			return aborted(res), fmt.Errorf("persisting %s: %w", txn.GlobalID, err)
		}
		if !inserted {
			s.report(log, &res, duplicate(cand))
			continue
		}
		s.report(log, &res, MessageResult{
			UID:         cand.msg.UID,
			Institution: txn.Institution,
			GlobalID:    txn.GlobalID,
			Outcome:     OutcomePersisted,
		})
	}

	phase(log, PhaseDone).
		Int("processed", res.Processed).
		Int("skipped", res.Skipped).
		Int("errors", res.Errors).
		Dur("elapsed", time.Since(start)).
		Send()
	return res, nil
}

func duplicate(c candidate) MessageResult {
	return MessageResult{
		UID:         c.msg.UID,
		Institution: c.txn.Institution,
		GlobalID:    c.txn.GlobalID,
		Outcome:     OutcomeDuplicate,
		Err:         fmt.Errorf("%w: %s", ErrDuplicateTransaction, c.txn.GlobalID),
	}
}

func phase(log zerolog.Logger, p Phase) *zerolog.Event {
	return log.Info().Str("phase", string(p))
}

func (s *Service) report(log zerolog.Logger, res *Result, mr MessageResult) {
	res.record(mr)
	var ev *zerolog.Event
	switch mr.Outcome {
	case OutcomePersisted:
		ev = log.Info()
	case OutcomeUnparseable:
		ev = log.Warn().Err(mr.Err)
	default:
		ev = log.Debug().Err(mr.Err)
	}
	ev.Str("uid", mr.UID).
		Str("outcome", string(mr.Outcome)).
		Str("institution", mr.Institution).
		Str("global_id", mr.GlobalID).
		Msg("message")
}
