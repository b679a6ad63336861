package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/settlement"
)

// DefaultSettleLockTTL bounds how long one settlement may hold the round lock.
const DefaultSettleLockTTL = 30 * time.Second

// SettlementArchiver writes the settlement report of a completed round.
type SettlementArchiver interface {
	ArchiveSettlement(ctx context.Context, round domain.Round, wagers []domain.Wager) (string, error)
}

// SettlementService settles a LIVE round against the verdict the host
// accepted. The settlement engine's transaction guarantees atomicity; the
// per-round lock keeps concurrent hosts from racing into it.
type SettlementService struct {
	engine   *settlement.Engine
	wagers   domain.WagerStore
	locks    domain.LockManager
	audit    domain.AuditStore
	events   *EventPublisher
	archiver SettlementArchiver
	lockTTL  time.Duration
	logger   *slog.Logger
}

// NewSettlementService creates a SettlementService. locks and archiver may be
// nil.
func NewSettlementService(
	engine *settlement.Engine,
	wagers domain.WagerStore,
	locks domain.LockManager,
	audit domain.AuditStore,
	events *EventPublisher,
	archiver SettlementArchiver,
	lockTTL time.Duration,
	logger *slog.Logger,
) *SettlementService {
	if lockTTL <= 0 {
		lockTTL = DefaultSettleLockTTL
	}
	return &SettlementService{
		engine:   engine,
		wagers:   wagers,
		locks:    locks,
		audit:    audit,
		events:   events,
		archiver: archiver,
		lockTTL:  lockTTL,
		logger:   logger.With(slog.String("component", "settlement_service")),
	}
}

// Settle closes out roundID with verdict. Settling a COMPLETED round again
// returns its stored outcome with AlreadySettled set and publishes nothing.
func (s *SettlementService) Settle(ctx context.Context, roundID, verdict string) (settlement.Result, error) {
	v, err := domain.ParseVerdict(verdict)
	if err != nil {
		return settlement.Result{}, fmt.Errorf("settlement_service: %w", err)
	}

	if s.locks != nil {
		unlock, err := s.locks.Acquire(ctx, domain.SettleLockKey(roundID), s.lockTTL)
		if err != nil {
			return settlement.Result{}, fmt.Errorf("settlement_service: lock round %s: %w", roundID, err)
		}
		defer unlock()
	}

	res, err := s.engine.Settle(ctx, roundID, v)
	if err != nil {
		return settlement.Result{}, fmt.Errorf("settlement_service: %w", err)
	}

	if res.AlreadySettled {
		wagers, err := s.wagers.ListByRound(ctx, roundID)
		if err != nil {
			return settlement.Result{}, fmt.Errorf("settlement_service: list wagers: %w", err)
		}
		res.Wagers = wagers
		res.Winners, res.TotalStake, res.TotalPaid = settlement.Totals(wagers)
		return res, nil
	}

	audit(ctx, s.audit, s.logger, domain.EventRoundSettled, roundID, map[string]any{
		"winner":     string(res.Round.Winner),
		"wagers":     len(res.Wagers),
		"winners":    res.Winners,
		"total_paid": res.TotalPaid.String(),
	})
	s.events.Publish(ctx, domain.EventRoundSettled, roundID, map[string]any{
		"winner":      string(res.Round.Winner),
		"winners":     res.Winners,
		"total_stake": res.TotalStake.String(),
		"total_paid":  res.TotalPaid.String(),
	})

	if s.archiver != nil {
		path, err := s.archiver.ArchiveSettlement(ctx, res.Round, res.Wagers)
		if err != nil {
			s.logger.WarnContext(ctx, "settlement_service: archive report failed",
				slog.String("round_id", roundID),
				slog.String("error", err.Error()),
			)
		} else {
			s.logger.DebugContext(ctx, "settlement_service: report archived",
				slog.String("round_id", roundID),
				slog.String("path", path),
			)
		}
	}
	return res, nil
}
