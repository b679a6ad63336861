package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// MaxBettorLength bounds the bettor name.
const MaxBettorLength = 64

// WagerConfig holds the tunable wager rules.
type WagerConfig struct {
	// MaxStake caps a single stake. Zero disables the cap.
	MaxStake decimal.Decimal
	// RateLimit is the number of wagers a bettor may place per RateWindow.
	// Zero disables throttling.
	RateLimit  int
	RateWindow time.Duration
}

// PlaceWagerRequest is the input to WagerService.Place.
type PlaceWagerRequest struct {
	Bettor string          `json:"bettor"`
	Stake  decimal.Decimal `json:"stake"`
	Zone   string          `json:"zone"`
}

// WagerService validates and records wagers on the OPEN round.
type WagerService struct {
	rounds  domain.RoundStore
	wagers  domain.WagerStore
	limiter domain.RateLimiter
	events  *EventPublisher
	cfg     WagerConfig
	now     func() time.Time
	logger  *slog.Logger
}

// NewWagerService creates a WagerService. limiter may be nil.
func NewWagerService(
	rounds domain.RoundStore,
	wagers domain.WagerStore,
	limiter domain.RateLimiter,
	events *EventPublisher,
	cfg WagerConfig,
	logger *slog.Logger,
) *WagerService {
	return &WagerService{
		rounds:  rounds,
		wagers:  wagers,
		limiter: limiter,
		events:  events,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
		logger:  logger.With(slog.String("component", "wager_service")),
	}
}

// Validate normalises req and checks it against the wager rules.
func (s *WagerService) Validate(req PlaceWagerRequest) (PlaceWagerRequest, domain.Zone, error) {
	req.Bettor = strings.TrimSpace(req.Bettor)
	if req.Bettor == "" {
		return req, "", fmt.Errorf("%w: bettor is required", domain.ErrInvalidWager)
	}
	if len(req.Bettor) > MaxBettorLength {
		return req, "", fmt.Errorf("%w: bettor exceeds %d characters", domain.ErrInvalidWager, MaxBettorLength)
	}

	zone, err := domain.ParseZone(req.Zone)
	if err != nil {
		return req, "", fmt.Errorf("%w: %v", domain.ErrInvalidWager, err)
	}
	if !zone.Playable() {
		return req, "", fmt.Errorf("%w: zone %s cannot be wagered on", domain.ErrInvalidWager, zone)
	}

	if !req.Stake.IsPositive() {
		return req, "", fmt.Errorf("%w: stake must be positive", domain.ErrInvalidWager)
	}
	if !req.Stake.Equal(req.Stake.Truncate(domain.MaxStakeDecimals)) {
		return req, "", fmt.Errorf("%w: stake has more than %d decimals", domain.ErrInvalidWager, domain.MaxStakeDecimals)
	}
	if s.cfg.MaxStake.IsPositive() && req.Stake.GreaterThan(s.cfg.MaxStake) {
		return req, "", fmt.Errorf("%w: stake exceeds %s", domain.ErrInvalidWager, s.cfg.MaxStake)
	}
	return req, zone, nil
}

// Place records a wager on roundID. The round must be OPEN at the moment the
// wager is stored.
func (s *WagerService) Place(ctx context.Context, roundID string, req PlaceWagerRequest) (domain.Wager, error) {
	req, zone, err := s.Validate(req)
	if err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: place: %w", err)
	}

	if s.limiter != nil && s.cfg.RateLimit > 0 {
		allowed, err := s.limiter.Allow(ctx, domain.WagerRateKey(req.Bettor), s.cfg.RateLimit, s.cfg.RateWindow)
		if err != nil {
			return domain.Wager{}, fmt.Errorf("wager_service: rate limiter: %w", err)
		}
		if !allowed {
			s.logger.WarnContext(ctx, "wager_service: bettor rate limited",
				slog.String("round_id", roundID),
				slog.String("bettor", req.Bettor),
			)
			return domain.Wager{}, fmt.Errorf("wager_service: place: %w", domain.ErrRateLimited)
		}
	}

	w := domain.Wager{
		ID:       uuid.NewString(),
		RoundID:  roundID,
		Bettor:   req.Bettor,
		Stake:    req.Stake,
		Zone:     zone,
		Status:   domain.WagerStatusPending,
		Winnings: decimal.Zero,
		PlacedAt: s.now(),
	}
	if err := s.wagers.Place(ctx, w); err != nil {
		return domain.Wager{}, fmt.Errorf("wager_service: place: %w", err)
	}

	s.events.Publish(ctx, domain.EventWagerPlaced, roundID, map[string]any{
		"wager_id": w.ID,
		"bettor":   w.Bettor,
		"stake":    w.Stake.String(),
		"zone":     string(w.Zone),
	})
	s.logger.InfoContext(ctx, "wager_service: wager placed",
		slog.String("round_id", roundID),
		slog.String("wager_id", w.ID),
		slog.String("zone", string(w.Zone)),
		slog.String("stake", w.Stake.String()),
	)
	return w, nil
}

// List returns the wagers placed on roundID in placement order.
func (s *WagerService) List(ctx context.Context, roundID string) ([]domain.Wager, error) {
	if _, err := s.rounds.GetByID(ctx, roundID); err != nil {
		return nil, fmt.Errorf("wager_service: list: %w", err)
	}
	wagers, err := s.wagers.ListByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("wager_service: list: %w", err)
	}
	if wagers == nil {
		wagers = []domain.Wager{}
	}
	return wagers, nil
}
