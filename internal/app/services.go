package app

import (
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/biathlonbet/internal/config"
	"github.com/alanyoungcy/biathlonbet/internal/service"
	"github.com/alanyoungcy/biathlonbet/internal/settlement"
	"github.com/alanyoungcy/biathlonbet/internal/vision"
)

// Services holds the business-logic services built on top of Dependencies.
type Services struct {
	Events     *service.EventPublisher
	Rounds     *service.RoundService
	Wagers     *service.WagerService
	Referee    *service.RefereeService
	Settlement *service.SettlementService
}

// buildServices constructs every service from deps and the game and vision
// configuration.
func buildServices(cfg *config.Config, deps *Dependencies, logger *slog.Logger) (*Services, error) {
	defaultPayout, err := decimal.NewFromString(cfg.Game.DefaultPayout)
	if err != nil {
		return nil, fmt.Errorf("services: default payout %q: %w", cfg.Game.DefaultPayout, err)
	}
	var maxStake decimal.Decimal
	if cfg.Game.MaxStake != "" {
		if maxStake, err = decimal.NewFromString(cfg.Game.MaxStake); err != nil {
			return nil, fmt.Errorf("services: max stake %q: %w", cfg.Game.MaxStake, err)
		}
	}
	vcfg, err := visionConfig(cfg.Vision)
	if err != nil {
		return nil, fmt.Errorf("services: %w", err)
	}

	// A nil *Archiver must not become a non-nil interface value.
	var (
		captureArchiver    service.CaptureArchiver
		settlementArchiver service.SettlementArchiver
	)
	if deps.Archiver != nil {
		captureArchiver = deps.Archiver
		settlementArchiver = deps.Archiver
	}

	events := service.NewEventPublisher(deps.SignalBus, deps.Notifier, logger)
	return &Services{
		Events: events,
		Rounds: service.NewRoundService(
			deps.RoundStore, deps.WagerStore, deps.AuditStore, events, defaultPayout, logger,
		),
		Wagers: service.NewWagerService(
			deps.RoundStore, deps.WagerStore, deps.RateLimiter, events,
			service.WagerConfig{
				MaxStake:   maxStake,
				RateLimit:  cfg.Game.WagerRateLimit,
				RateWindow: cfg.Game.WagerRateWindow.Duration,
			},
			logger,
		),
		Referee: service.NewRefereeService(
			deps.RoundStore, deps.CaptureStore, vision.New(vcfg),
			captureArchiver, deps.BlobReader, events, logger,
		),
		Settlement: service.NewSettlementService(
			settlement.NewEngine(deps.SettlementStore, logger),
			deps.WagerStore, deps.LockManager, deps.AuditStore, events,
			settlementArchiver, cfg.Game.SettleLockTTL.Duration, logger,
		),
	}, nil
}
