package service

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/biathlonbet/internal/capture"
	"github.com/alanyoungcy/biathlonbet/internal/domain"
	"github.com/alanyoungcy/biathlonbet/internal/vision"
)

// CaptureArchiver stores the image behind a capture and returns its path.
type CaptureArchiver interface {
	ArchiveCapture(ctx context.Context, c domain.Capture, png []byte) (string, error)
}

// CaptureResult is a recorded capture plus the reason its marker was
// rejected, if it was.
type CaptureResult struct {
	domain.Capture
	Reason string `json:"reason,omitempty"`
}

// RefereeService classifies captures of the board for a LIVE round. A
// capture is evidence only: it never changes round or wager state, and the
// host may retake it as often as needed before settling.
type RefereeService struct {
	rounds   domain.RoundStore
	captures domain.CaptureStore
	referee  vision.Classifier
	archiver CaptureArchiver
	images   domain.BlobReader
	events   *EventPublisher
	now      func() time.Time
	logger   *slog.Logger
}

// NewRefereeService creates a RefereeService. archiver and images may be nil
// when no object storage is configured.
func NewRefereeService(
	rounds domain.RoundStore,
	captures domain.CaptureStore,
	referee vision.Classifier,
	archiver CaptureArchiver,
	images domain.BlobReader,
	events *EventPublisher,
	logger *slog.Logger,
) *RefereeService {
	return &RefereeService{
		rounds:   rounds,
		captures: captures,
		referee:  referee,
		archiver: archiver,
		images:   images,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
		logger:   logger.With(slog.String("component", "referee_service")),
	}
}

// Capture acquires one image from src and classifies it for roundID. An
// unreadable image is reported as domain.ErrImageUnavailable and nothing is
// recorded; a failed detection is a NO_MARKER verdict, not an error.
func (s *RefereeService) Capture(ctx context.Context, roundID string, src capture.Source) (CaptureResult, error) {
	round, err := s.rounds.GetByID(ctx, roundID)
	if err != nil {
		return CaptureResult{}, fmt.Errorf("referee_service: capture: %w", err)
	}
	if round.Status != domain.RoundStatusLive {
		return CaptureResult{}, fmt.Errorf("referee_service: capture: %w: round %s is %s",
			domain.ErrRoundNotLive, round.ID, round.Status)
	}

	img, err := src.Acquire(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "referee_service: image unavailable",
			slog.String("round_id", roundID),
			slog.String("error", err.Error()),
		)
		return CaptureResult{}, fmt.Errorf("referee_service: capture: %w", err)
	}

	det := s.referee.Classify(img)
	res := CaptureResult{Capture: toCapture(roundID, det, s.now())}
	if det.Reason != nil {
		res.Reason = det.Reason.Error()
	}

	if s.archiver != nil {
		res.ImagePath = s.archive(ctx, res.Capture, img)
	}

	if err := s.captures.Save(ctx, res.Capture); err != nil {
		return CaptureResult{}, fmt.Errorf("referee_service: save capture: %w", err)
	}

	payload := map[string]any{
		"capture_id": res.ID,
		"verdict":    string(res.Verdict),
		"vertices":   res.MarkerVertices,
	}
	if res.Centroid != nil {
		payload["centroid"] = fmt.Sprintf("%.1f,%.1f", res.Centroid.X, res.Centroid.Y)
	}
	if res.Reason != "" {
		payload["reason"] = res.Reason
	}
	s.events.Publish(ctx, domain.EventVerdictDetected, roundID, payload)

	s.logger.InfoContext(ctx, "referee_service: verdict detected",
		slog.String("round_id", roundID),
		slog.String("capture_id", res.ID),
		slog.String("verdict", string(res.Verdict)),
		slog.Int("zones_found", len(res.ZonesFound)),
	)
	return res, nil
}

func (s *RefereeService) archive(ctx context.Context, c domain.Capture, img image.Image) string {
	data, err := capture.EncodePNG(img)
	if err == nil {
		var path string
		path, err = s.archiver.ArchiveCapture(ctx, c, data)
		if err == nil {
			return path
		}
	}
	s.logger.WarnContext(ctx, "referee_service: archive capture failed",
		slog.String("round_id", c.RoundID),
		slog.String("capture_id", c.ID),
		slog.String("error", err.Error()),
	)
	return ""
}

// Captures lists the captures taken for roundID, oldest first.
func (s *RefereeService) Captures(ctx context.Context, roundID string) ([]domain.Capture, error) {
	if _, err := s.rounds.GetByID(ctx, roundID); err != nil {
		return nil, fmt.Errorf("referee_service: captures: %w", err)
	}
	out, err := s.captures.ListByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("referee_service: captures: %w", err)
	}
	if out == nil {
		out = []domain.Capture{}
	}
	return out, nil
}

// CaptureImage opens the archived image of one capture. It returns
// domain.ErrNotFound when the capture does not exist or was not archived.
func (s *RefereeService) CaptureImage(ctx context.Context, roundID, captureID string) (io.ReadCloser, error) {
	if s.images == nil {
		return nil, fmt.Errorf("referee_service: capture image: %w", domain.ErrNotFound)
	}
	list, err := s.captures.ListByRound(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("referee_service: capture image: %w", err)
	}
	for _, c := range list {
		if c.ID != captureID {
			continue
		}
		if c.ImagePath == "" {
			break
		}
		rc, err := s.images.Get(ctx, c.ImagePath)
		if err != nil {
			return nil, fmt.Errorf("referee_service: capture image: %w", err)
		}
		return rc, nil
	}
	return nil, fmt.Errorf("referee_service: capture image %s: %w", captureID, domain.ErrNotFound)
}

// Detect classifies a single image without recording anything.
func (s *RefereeService) Detect(img image.Image) vision.Detection {
	return s.referee.Classify(img)
}

func toCapture(roundID string, det vision.Detection, at time.Time) domain.Capture {
	c := domain.Capture{
		ID:             uuid.NewString(),
		RoundID:        roundID,
		Verdict:        det.Verdict,
		MarkerVertices: det.MarkerVertices,
		ZonesFound:     det.ZonesFound,
		CapturedAt:     at,
	}
	if c.ZonesFound == nil {
		c.ZonesFound = []domain.Zone{}
	}
	if det.Centroid != nil {
		c.Centroid = &domain.Point{X: det.Centroid.X, Y: det.Centroid.Y}
	}
	return c
}
