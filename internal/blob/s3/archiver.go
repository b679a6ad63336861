package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/biathlonbet/internal/domain"
)

// DefaultMultipartThreshold is the image size above which captures are
// uploaded with the multipart manager.
const DefaultMultipartThreshold = 8 * 1024 * 1024

// Archiver writes capture evidence and settlement reports to blob storage.
// It depends only on the domain blob interfaces.
type Archiver struct {
	writer    domain.BlobWriter
	reader    domain.BlobReader
	threshold int64
}

// NewArchiver creates an Archiver. reader may be nil, in which case
// settlement reports are always rewritten.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, multipartThreshold int64) *Archiver {
	if multipartThreshold <= 0 {
		multipartThreshold = DefaultMultipartThreshold
	}
	return &Archiver{writer: writer, reader: reader, threshold: multipartThreshold}
}

// ArchiveCapture stores the encoded image and the capture record next to
// each other and returns the image path.
//
//	captures/<round>/<capture>.png
//	captures/<round>/<capture>.json
func (a *Archiver) ArchiveCapture(ctx context.Context, c domain.Capture, png []byte) (string, error) {
	imagePath := CaptureImagePath(c.RoundID, c.ID)

	var err error
	if int64(len(png)) > a.threshold {
		err = a.writer.PutMultipart(ctx, imagePath, bytes.NewReader(png), 0)
	} else {
		err = a.writer.Put(ctx, imagePath, bytes.NewReader(png), "image/png")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive capture image: %w", err)
	}

	c.ImagePath = imagePath
	record, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive capture marshal: %w", err)
	}
	recordPath := fmt.Sprintf("captures/%s/%s.json", c.RoundID, c.ID)
	if err := a.writer.Put(ctx, recordPath, bytes.NewReader(record), "application/json"); err != nil {
		return "", fmt.Errorf("s3blob: archive capture record: %w", err)
	}
	return imagePath, nil
}

// settlementHeader is the first line of a settlement report.
type settlementHeader struct {
	Round   domain.Round `json:"round"`
	Wagers  int          `json:"wagers"`
	Written time.Time    `json:"written"`
}

// ArchiveSettlement writes a JSONL report for a completed round: a header
// line followed by one line per wager. A report that already exists is left
// untouched and its path returned.
//
//	settlements/2026-10/<round>.jsonl
func (a *Archiver) ArchiveSettlement(ctx context.Context, round domain.Round, wagers []domain.Wager) (string, error) {
	settled := round.CreatedAt
	if round.SettledAt != nil {
		settled = *round.SettledAt
	}
	path := SettlementReportPath(round.ID, settled)

	if a.reader != nil {
		exists, err := a.reader.Exists(ctx, path)
		if err != nil {
			return "", fmt.Errorf("s3blob: archive settlement exists: %w", err)
		}
		if exists {
			return path, nil
		}
	}

	header, err := marshalJSONL([]settlementHeader{{
		Round:   round,
		Wagers:  len(wagers),
		Written: time.Now().UTC(),
	}})
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement marshal: %w", err)
	}
	lines, err := marshalJSONL(wagers)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive settlement marshal: %w", err)
	}

	body := append(header, lines...)
	if err := a.writer.Put(ctx, path, bytes.NewReader(body), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive settlement upload: %w", err)
	}
	return path, nil
}

// CaptureImagePath is the blob key of a capture image.
func CaptureImagePath(roundID, captureID string) string {
	return fmt.Sprintf("captures/%s/%s.png", roundID, captureID)
}

// SettlementReportPath is the blob key of a round's settlement report,
// partitioned by the year-month it settled in.
func SettlementReportPath(roundID string, settled time.Time) string {
	return fmt.Sprintf("settlements/%s/%s.jsonl", settled.UTC().Format("2006-01"), roundID)
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
