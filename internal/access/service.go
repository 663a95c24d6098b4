package access

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/intercom-access/internal/audit"
	"github.com/nerrad567/intercom-access/internal/credential"
	"github.com/nerrad567/intercom-access/internal/directory"
	"github.com/nerrad567/intercom-access/internal/infrastructure/config"
	"github.com/nerrad567/intercom-access/internal/infrastructure/database"
	"github.com/nerrad567/intercom-access/internal/scope"
)

// Logger is the logging interface used by the service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Deps holds the collaborators of a Service.
type Deps struct {
	DB     *database.DB
	Hasher *credential.Hasher
	Config config.AccessConfig

	// Sinks receive every verification outcome. Optional.
	Sinks []EventSink

	// Logger defaults to a no-op logger.
	Logger Logger

	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Service is the intercom access core: credential management, door
// verification and the scoped ledger read side.
//
// Thread Safety: all methods are safe for concurrent use. Each call is one
// independent unit of work against the database.
type Service struct {
	db     *database.DB
	dir    *directory.Repository
	scope  *scope.Resolver
	store  *credential.Store
	ledger *audit.Ledger
	hasher *credential.Hasher
	guard  *Guard
	cfg    config.AccessConfig
	sinks  []EventSink
	logger Logger
	now    func() time.Time
}

// NewService wires a Service over d.
func NewService(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = noopLogger{}
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	dir := directory.NewRepository(d.DB)
	return &Service{
		db:     d.DB,
		dir:    dir,
		scope:  scope.NewResolver(dir),
		store:  credential.NewStore(d.DB),
		ledger: audit.NewLedger(d.DB, d.Config.DefaultPageSize, d.Config.MaxPageSize),
		hasher: d.Hasher,
		guard:  NewGuard(dir, d.Hasher),
		cfg:    d.Config,
		sinks:  d.Sinks,
		logger: d.Logger,
		now:    func() time.Time { return d.Clock().UTC() },
	}
}

// intercom loads an intercom, mapping a miss to NotFound.
func (s *Service) intercom(ctx context.Context, op string, id int64) (*directory.Intercom, error) {
	ic, err := s.dir.Intercom(ctx, id)
	if err != nil {
		if errors.Is(err, directory.ErrIntercomNotFound) {
			return nil, notFound(op, err)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return ic, nil
}

// validateSecret checks the length of a PIN or code.
func (s *Service) validateSecret(op, field, secret string, maxLen int) error {
	n := utf8.RuneCountInString(secret)
	if n < s.cfg.PinMinLength || n > maxLen {
		return newError(KindValidation, op,
			fmt.Sprintf("%s must be %d to %d characters", field, s.cfg.PinMinLength, maxLen))
	}
	return nil
}

// recordDenial appends a refused mutation attempt. Only authorisation and
// credential failures are recorded, and only when the intercom or building
// is known. The caller already has a failure to return, so a ledger error
// is only logged.
func (s *Service) recordDenial(ctx context.Context, e audit.Entry, cause error) {
	var ae *Error
	if !errors.As(cause, &ae) {
		return
	}
	switch ae.Kind {
	case KindNotAllowed, KindInvalidCredential, KindMasterPinRequired, KindInvalidMasterPin:
	default:
		return
	}
	if e.IntercomID == nil && e.BuildingID == nil {
		return
	}

	e.IsSuccess = false
	e.Reason = ae.Description()
	e.OccurredAt = s.now()
	if err := s.ledger.Append(ctx, &e); err != nil {
		s.logger.Error("failed to record denied attempt", "action", e.Action, "error", err)
	}
}

func ptr[T any](v T) *T { return &v }
