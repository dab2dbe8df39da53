package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/civicpulse/receipts/internal/anchor"
	"github.com/civicpulse/receipts/internal/intake/model"
	"github.com/civicpulse/receipts/internal/intake/repository"
	"github.com/civicpulse/receipts/internal/notify"
	"github.com/civicpulse/receipts/internal/receiptchain"
)

const (
	maxTextBytes     = 4096
	maxLanguageBytes = 16
)

// SubmissionRepository is the persistence interface for submissions.
// *repository.SubmissionRepository and *repository.MemoryRepository satisfy it.
type SubmissionRepository interface {
	Create(ctx context.Context, s *model.Submission) error
	GetByID(ctx context.Context, id int64) (*model.Submission, error)
	List(ctx context.Context, status model.Status, limit, offset int) ([]*model.Submission, error)
	UpdateStatus(ctx context.Context, id int64, status model.Status) (*model.Submission, error)
	SoftDelete(ctx context.Context, id int64) error
	Discard(ctx context.Context, id int64) error
}

// AnchorSource exposes the latest external attestation. *anchor.Service satisfies it.
type AnchorSource interface {
	Last() *anchor.Attestation
}

// LedgerOverview is the public summary of the chain.
type LedgerOverview struct {
	model.LedgerHead
	Anchor *anchor.Attestation `json:"anchor"`
}

// ReceiptService issues receipts for submissions and answers verification queries.
type ReceiptService struct {
	store     receiptchain.Store
	verifier  *receiptchain.Verifier
	repo      SubmissionRepository
	publisher notify.Publisher // nil = no notifications
	anchors   AnchorSource     // nil = anchoring disabled
	logger    *zap.Logger
}

// NewReceiptService creates a new ReceiptService. publisher may be nil.
func NewReceiptService(store receiptchain.Store, repo SubmissionRepository, publisher notify.Publisher, logger *zap.Logger) *ReceiptService {
	return &ReceiptService{
		store:     store,
		verifier:  receiptchain.NewVerifier(store),
		repo:      repo,
		publisher: publisher,
		logger:    logger,
	}
}

// SetAnchorSource configures where the ledger overview reads attestations from.
func (s *ReceiptService) SetAnchorSource(a AnchorSource) {
	s.anchors = a
}

// Submit stores a submission, chains its receipt and returns it. Calling
// Submit twice with the same request creates two receipts.
func (s *ReceiptService) Submit(ctx context.Context, req *model.SubmitRequest) (*model.Receipt, error) {
	sub, err := newSubmission(req)
	if err != nil {
		return nil, err
	}

	if err := s.repo.Create(ctx, sub); err != nil {
		s.logger.Error("failed to create submission", zap.Error(err))
		return nil, &receiptchain.WriteError{Op: "create submission", Err: err}
	}

	link, err := s.store.Append(ctx, receiptchain.Draft{
		SubmissionID: sub.ID,
		Intent:       string(sub.Intent),
		Text:         sub.Text,
		CreatedAt:    sub.CreatedAt,
	})
	if err != nil {
		// No receipt exists, so the submission was not accepted.
		if dErr := s.repo.Discard(ctx, sub.ID); dErr != nil {
			s.logger.Error("failed to discard unreceipted submission",
				zap.Int64("submission_id", sub.ID), zap.Error(dErr))
		}
		var vErr *receiptchain.ValidationError
		if errors.As(err, &vErr) {
			return nil, &model.ErrValidation{Msg: vErr.Msg}
		}
		if errors.Is(err, receiptchain.ErrAllocationExhausted) {
			s.logger.Error("short code allocation exhausted", zap.Int64("submission_id", sub.ID))
		} else {
			s.logger.Error("receipt append failed", zap.Int64("submission_id", sub.ID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("receipt issued",
		zap.String("receipt_id", link.ReceiptID().String()),
		zap.String("short_code", link.ShortCode()),
		zap.Int64("sequence", link.Sequence),
		zap.String("intent", string(sub.Intent)),
	)
	s.publish(ctx, link)

	return model.NewReceipt(link, sub.Status), nil
}

func newSubmission(req *model.SubmitRequest) (*model.Submission, error) {
	if !req.Intent.Valid() {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("unknown intent %q", req.Intent)}
	}
	text := receiptchain.CanonicalText(req.Text)
	if !utf8.ValidString(text) {
		return nil, &model.ErrValidation{Msg: "text must be valid UTF-8"}
	}
	if strings.ContainsRune(text, 0) {
		return nil, &model.ErrValidation{Msg: "text must not contain NUL bytes"}
	}
	if len(text) > maxTextBytes {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("text exceeds %d bytes", maxTextBytes)}
	}
	if len(req.Language) > maxLanguageBytes || strings.ContainsRune(req.Language, 0) {
		return nil, &model.ErrValidation{Msg: "language tag too long"}
	}
	if (req.Latitude == nil) != (req.Longitude == nil) {
		return nil, &model.ErrValidation{Msg: "latitude and longitude must be given together"}
	}
	if req.Latitude != nil && (*req.Latitude < -90 || *req.Latitude > 90 || *req.Longitude < -180 || *req.Longitude > 180) {
		return nil, &model.ErrValidation{Msg: "coordinates out of range"}
	}

	priority := req.Priority
	switch {
	case priority == "" && req.Intent == model.IntentEmergency:
		priority = model.PriorityCritical
	case priority == "":
		priority = model.PriorityMedium
	case !priority.Valid():
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("unknown priority %q", priority)}
	}

	return &model.Submission{
		Intent:    req.Intent,
		Text:      text,
		Status:    model.StatusPending,
		Priority:  priority,
		Language:  req.Language,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}, nil
}

// publish emits receipt.issued without letting a delivery failure surface.
func (s *ReceiptService) publish(ctx context.Context, link *receiptchain.Link) {
	if s.publisher == nil {
		return
	}
	ev := notify.NewEvent(notify.EventReceiptIssued, map[string]string{
		"receipt_id":     link.ReceiptID().String(),
		"short_code":     receiptchain.FormatShortCode(link.ShortCode()),
		"receipt_hash":   link.Hash,
		"chain_position": strconv.FormatInt(link.Position(), 10),
		"submission_id":  strconv.FormatInt(link.Payload.SubmissionID, 10),
		"intent":         link.Payload.Intent,
	})
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("receipt.issued notification failed (non-fatal)",
			zap.String("receipt_id", link.ReceiptID().String()),
			zap.Error(err),
		)
	}
}

// Fetch returns the receipt with the given id.
func (s *ReceiptService) Fetch(ctx context.Context, id uuid.UUID) (*model.Receipt, error) {
	link, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.receipt(ctx, link)
}

// FetchByShortCode returns the receipt for a short code in any case or display form.
func (s *ReceiptService) FetchByShortCode(ctx context.Context, code string) (*model.Receipt, error) {
	link, err := s.store.GetByShortCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return s.receipt(ctx, link)
}

func (s *ReceiptService) receipt(ctx context.Context, link *receiptchain.Link) (*model.Receipt, error) {
	status := model.StatusWithdrawn
	sub, err := s.repo.GetByID(ctx, link.Payload.SubmissionID)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		return nil, fmt.Errorf("read submission %d: %w", link.Payload.SubmissionID, err)
	case sub.DeletedAt == nil:
		status = sub.Status
	}
	return model.NewReceipt(link, status), nil
}

// Verify checks the receipt named by ref, a receipt id or a short code.
// A failed integrity check is a normal result; errors mean the receipt could
// not be found or the ledger could not be read.
func (s *ReceiptService) Verify(ctx context.Context, ref string) (*model.VerificationResult, error) {
	r, err := receiptchain.ParseRef(ref)
	if err != nil {
		return nil, err
	}
	res, err := s.verifier.Verify(ctx, r)
	if err != nil {
		return nil, err
	}
	if !res.Verified {
		s.logger.Warn("receipt verification FAILED",
			zap.String("receipt_id", res.ReceiptID.String()),
			zap.String("failure", string(res.Failure)),
			zap.Int64("position", res.Position),
		)
	}
	return model.NewVerificationResult(res), nil
}

// Head returns the chain length, head hash and latest attestation.
func (s *ReceiptService) Head(ctx context.Context) (*LedgerOverview, error) {
	tail, err := s.store.Tail(ctx)
	if err != nil {
		return nil, err
	}
	out := &LedgerOverview{LedgerHead: model.LedgerHead{Length: tail.Length, HeadHash: tail.Hash}}
	if s.anchors != nil {
		out.Anchor = s.anchors.Last()
	}
	return out, nil
}

// Link returns the raw ledger link at a zero-based sequence.
func (s *ReceiptService) Link(ctx context.Context, seq int64) (*receiptchain.Link, error) {
	return s.store.GetBySequence(ctx, seq)
}

// Audit walks the whole chain.
func (s *ReceiptService) Audit(ctx context.Context) (*receiptchain.AuditReport, error) {
	report, err := s.verifier.Audit(ctx, receiptchain.Tail{Hash: receiptchain.GenesisHash})
	if err != nil {
		return nil, err
	}
	if !report.Intact {
		s.logger.Error("ledger audit found a break",
			zap.Int64("broken_at", *report.BrokenAt),
			zap.String("failure", string(report.Failure)),
		)
	}
	return report, nil
}

// ListSubmissions returns live submissions for the operator queue.
func (s *ReceiptService) ListSubmissions(ctx context.Context, status model.Status, limit, offset int) ([]*model.Submission, error) {
	if status != "" && !status.Valid() {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("unknown status %q", status)}
	}
	return s.repo.List(ctx, status, limit, offset)
}

// UpdateStatus moves a submission to a new handling state. The receipt and
// its hash are unaffected.
func (s *ReceiptService) UpdateStatus(ctx context.Context, id int64, status model.Status) (*model.Submission, error) {
	if !status.Valid() {
		return nil, &model.ErrValidation{Msg: fmt.Sprintf("unknown status %q", status)}
	}
	sub, err := s.repo.UpdateStatus(ctx, id, status)
	if err != nil {
		return nil, err
	}
	s.logger.Info("submission status updated",
		zap.Int64("submission_id", id),
		zap.String("status", string(status)),
	)
	return sub, nil
}

// Withdraw soft-deletes a submission. Its receipt stays verifiable.
func (s *ReceiptService) Withdraw(ctx context.Context, id int64) error {
	if err := s.repo.SoftDelete(ctx, id); err != nil {
		return err
	}
	s.logger.Info("submission withdrawn", zap.Int64("submission_id", id))
	return nil
}
