package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// MaxPayoutDecimals is the number of fractional digits a payout may carry.
const MaxPayoutDecimals = 4

// RoundResults is a round together with every wager placed on it.
type RoundResults struct {
	Round  domain.Round   `json:"round"`
	Wagers []domain.Wager `json:"wagers"`
}

// RoundService manages the round lifecycle up to settlement.
type RoundService struct {
	rounds        domain.RoundStore
	wagers        domain.WagerStore
	audit         domain.AuditStore
	events        *EventPublisher
	defaultPayout decimal.Decimal
	now           func() time.Time
	logger        *slog.Logger
}

// NewRoundService creates a RoundService. defaultPayout is used when a round
// is created without an explicit multiplier.
func NewRoundService(
	rounds domain.RoundStore,
	wagers domain.WagerStore,
	audit domain.AuditStore,
	events *EventPublisher,
	defaultPayout decimal.Decimal,
	logger *slog.Logger,
) *RoundService {
	return &RoundService{
		rounds:        rounds,
		wagers:        wagers,
		audit:         audit,
		events:        events,
		defaultPayout: defaultPayout,
		now:           func() time.Time { return time.Now().UTC() },
		logger:        logger.With(slog.String("component", "round_service")),
	}
}

// ValidatePayout checks that payout is a usable multiplier.
func ValidatePayout(payout decimal.Decimal) error {
	if payout.LessThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: %s is below 1", domain.ErrInvalidPayout, payout)
	}
	if !payout.Equal(payout.Truncate(MaxPayoutDecimals)) {
		return fmt.Errorf("%w: %s has more than %d decimals", domain.ErrInvalidPayout, payout, MaxPayoutDecimals)
	}
	return nil
}

// Create opens a new round for wagers. A nil payout uses the default. It
// fails with domain.ErrActiveRoundExists while another round is OPEN or LIVE.
func (s *RoundService) Create(ctx context.Context, payout *decimal.Decimal) (domain.Round, error) {
	p := s.defaultPayout
	if payout != nil {
		p = *payout
	}
	if err := ValidatePayout(p); err != nil {
		return domain.Round{}, fmt.Errorf("round_service: create: %w", err)
	}

	round := domain.Round{
		ID:        uuid.New().String()[:8],
		Status:    domain.RoundStatusOpen,
		Payout:    p,
		CreatedAt: s.now(),
	}
	if err := s.rounds.Create(ctx, round); err != nil {
		return domain.Round{}, fmt.Errorf("round_service: create: %w", err)
	}

	audit(ctx, s.audit, s.logger, domain.EventRoundCreated, round.ID, map[string]any{
		"payout": round.Payout.String(),
	})
	s.events.Publish(ctx, domain.EventRoundCreated, round.ID, map[string]any{
		"payout": round.Payout.String(),
	})
	s.logger.InfoContext(ctx, "round_service: round created",
		slog.String("round_id", round.ID),
		slog.String("payout", round.Payout.String()),
	)
	return round, nil
}

// CloseBetting moves an OPEN round to LIVE. Wagers are refused from then on.
func (s *RoundService) CloseBetting(ctx context.Context, id string) (domain.Round, error) {
	if err := s.rounds.CloseBetting(ctx, id, s.now()); err != nil {
		return domain.Round{}, fmt.Errorf("round_service: close betting: %w", err)
	}
	round, err := s.rounds.GetByID(ctx, id)
	if err != nil {
		return domain.Round{}, fmt.Errorf("round_service: close betting: %w", err)
	}

	count, err := s.wagers.CountByRound(ctx, id)
	if err != nil {
		s.logger.WarnContext(ctx, "round_service: count wagers failed",
			slog.String("round_id", id),
			slog.String("error", err.Error()),
		)
	}

	audit(ctx, s.audit, s.logger, domain.EventBettingClosed, id, map[string]any{
		"wagers": count,
	})
	s.events.Publish(ctx, domain.EventBettingClosed, id, map[string]any{
		"wagers": count,
	})
	s.logger.InfoContext(ctx, "round_service: betting closed",
		slog.String("round_id", id),
		slog.Int64("wagers", count),
	)
	return round, nil
}

// Get returns a round with its wager count.
func (s *RoundService) Get(ctx context.Context, id string) (domain.RoundSummary, error) {
	round, err := s.rounds.GetByID(ctx, id)
	if err != nil {
		return domain.RoundSummary{}, fmt.Errorf("round_service: get: %w", err)
	}
	return s.summarize(ctx, round)
}

// Active returns the OPEN or LIVE round, or domain.ErrNotFound.
func (s *RoundService) Active(ctx context.Context) (domain.RoundSummary, error) {
	round, err := s.rounds.GetActive(ctx)
	if err != nil {
		return domain.RoundSummary{}, fmt.Errorf("round_service: active: %w", err)
	}
	return s.summarize(ctx, round)
}

// Latest returns the most recently settled round with its wagers.
func (s *RoundService) Latest(ctx context.Context) (RoundResults, error) {
	round, err := s.rounds.GetLatestCompleted(ctx)
	if err != nil {
		return RoundResults{}, fmt.Errorf("round_service: latest: %w", err)
	}
	return s.withWagers(ctx, round)
}

// Results returns a round and every wager placed on it.
func (s *RoundService) Results(ctx context.Context, id string) (RoundResults, error) {
	round, err := s.rounds.GetByID(ctx, id)
	if err != nil {
		return RoundResults{}, fmt.Errorf("round_service: results: %w", err)
	}
	return s.withWagers(ctx, round)
}

func (s *RoundService) summarize(ctx context.Context, round domain.Round) (domain.RoundSummary, error) {
	count, err := s.wagers.CountByRound(ctx, round.ID)
	if err != nil {
		return domain.RoundSummary{}, fmt.Errorf("round_service: count wagers: %w", err)
	}
	return domain.RoundSummary{Round: round, TotalWagers: count}, nil
}

func (s *RoundService) withWagers(ctx context.Context, round domain.Round) (RoundResults, error) {
	wagers, err := s.wagers.ListByRound(ctx, round.ID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return RoundResults{}, fmt.Errorf("round_service: list wagers: %w", err)
	}
	if wagers == nil {
		wagers = []domain.Wager{}
	}
	return RoundResults{Round: round, Wagers: wagers}, nil
}
