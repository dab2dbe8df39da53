package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/civicpulse/receipts/internal/anchor"
	"github.com/civicpulse/receipts/internal/intake/model"
	"github.com/civicpulse/receipts/internal/intake/repository"
	"github.com/civicpulse/receipts/internal/intake/service"
	"github.com/civicpulse/receipts/internal/notify"
	"github.com/civicpulse/receipts/internal/receiptchain"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e notify.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

// failingStore rejects every append with appendErr.
type failingStore struct {
	*receiptchain.MemoryStore
	appendErr error
}

func (f *failingStore) Append(context.Context, receiptchain.Draft) (*receiptchain.Link, error) {
	return nil, f.appendErr
}

type fixedAnchor struct{ att *anchor.Attestation }

func (f fixedAnchor) Last() *anchor.Attestation { return f.att }

type fixture struct {
	svc   *service.ReceiptService
	store *receiptchain.MemoryStore
	repo  *repository.MemoryRepository
	pub   *recordingPublisher
}

func newFixture() *fixture {
	store := receiptchain.NewMemoryStore(nil)
	repo := repository.NewMemoryRepository()
	pub := &recordingPublisher{}
	return &fixture{
		svc:   service.NewReceiptService(store, repo, pub, zap.NewNop()),
		store: store,
		repo:  repo,
		pub:   pub,
	}
}

func waterReq() *model.SubmitRequest {
	return &model.SubmitRequest{Intent: model.IntentWaterOutage, Text: "no water since morning"}
}

func TestSubmit_IssuesChainedReceipts(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	r1, err := f.svc.Submit(ctx, waterReq())
	require.NoError(t, err)
	assert.Equal(t, int64(1), r1.ChainPosition)
	assert.True(t, strings.HasPrefix(r1.ShortCode, "CP-"))
	assert.Len(t, r1.ReceiptHash, 64)
	assert.Equal(t, model.StatusPending, r1.Submission.Status)
	assert.Equal(t, "water_outage", r1.Submission.Intent)

	r2, err := f.svc.Submit(ctx, waterReq())
	require.NoError(t, err)
	assert.Equal(t, int64(2), r2.ChainPosition)
	assert.NotEqual(t, r1.ReceiptID, r2.ReceiptID, "submit is not idempotent")

	link2, err := f.store.GetByID(ctx, r2.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, r1.ReceiptHash, link2.PrevHash)
}

func TestSubmit_PublishesReceiptIssued(t *testing.T) {
	f := newFixture()
	r, err := f.svc.Submit(context.Background(), waterReq())
	require.NoError(t, err)

	require.Len(t, f.pub.events, 1)
	ev := f.pub.events[0]
	assert.Equal(t, notify.EventReceiptIssued, ev.Type)
	assert.Equal(t, r.ReceiptID.String(), ev.Payload["receipt_id"])
	assert.Equal(t, r.ShortCode, ev.Payload["short_code"])
	assert.Equal(t, "1", ev.Payload["chain_position"])
}

func TestSubmit_NotificationFailureDoesNotFailSubmit(t *testing.T) {
	f := newFixture()
	f.pub.err = errors.New("broker down")
	_, err := f.svc.Submit(context.Background(), waterReq())
	assert.NoError(t, err)
}

func TestSubmit_DefaultsPriority(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, &model.SubmitRequest{Intent: model.IntentEmergency})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, &model.SubmitRequest{Intent: model.IntentGarbage, Text: "bins"})
	require.NoError(t, err)

	s1, _ := f.repo.GetByID(ctx, 1)
	s2, _ := f.repo.GetByID(ctx, 2)
	assert.Equal(t, model.PriorityCritical, s1.Priority)
	assert.Equal(t, model.PriorityMedium, s2.Priority)
}

func TestSubmit_CanonicalisesTextBeforeStoring(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	r, err := f.svc.Submit(ctx, &model.SubmitRequest{Intent: model.IntentRoad, Text: "café road  \n"})
	require.NoError(t, err)
	assert.Equal(t, "café road", r.Submission.Text)

	sub, _ := f.repo.GetByID(ctx, r.Submission.ID)
	assert.Equal(t, r.Submission.Text, sub.Text)
}

func TestSubmit_Validation(t *testing.T) {
	lat, lng, bad := 12.97, 77.59, 200.0
	cases := map[string]*model.SubmitRequest{
		"unknown intent":    {Intent: "parking"},
		"unknown priority":  {Intent: model.IntentRoad, Priority: "urgent"},
		"text too long":     {Intent: model.IntentRoad, Text: strings.Repeat("x", 4097)},
		"half coordinates":  {Intent: model.IntentRoad, Latitude: &lat},
		"bad longitude":     {Intent: model.IntentRoad, Latitude: &lat, Longitude: &bad},
		"language too long": {Intent: model.IntentRoad, Language: strings.Repeat("x", 17)},
		"NUL in text":       {Intent: model.IntentRoad, Text: "pothole\x00here"},
		"NUL in language":   {Intent: model.IntentRoad, Language: "kn\x00"},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			_, err := f.svc.Submit(context.Background(), req)
			var valErr *model.ErrValidation
			assert.ErrorAs(t, err, &valErr)
			tail, _ := f.store.Tail(context.Background())
			assert.Zero(t, tail.Length)
			subs, _ := f.svc.ListSubmissions(context.Background(), "", 10, 0)
			assert.Empty(t, subs, "rejected requests never reach the submissions table")
		})
	}

	f := newFixture()
	_, err := f.svc.Submit(context.Background(), &model.SubmitRequest{Intent: model.IntentRoad, Latitude: &lat, Longitude: &lng})
	assert.NoError(t, err)
}

func TestSubmit_AppendFailureDiscardsSubmission(t *testing.T) {
	for name, appendErr := range map[string]error{
		"exhausted": receiptchain.ErrAllocationExhausted,
		"storage":   &receiptchain.WriteError{Op: "commit", Err: errors.New("disk full")},
	} {
		t.Run(name, func(t *testing.T) {
			repo := repository.NewMemoryRepository()
			pub := &recordingPublisher{}
			store := &failingStore{MemoryStore: receiptchain.NewMemoryStore(nil), appendErr: appendErr}
			svc := service.NewReceiptService(store, repo, pub, zap.NewNop())

			_, err := svc.Submit(context.Background(), waterReq())
			assert.ErrorIs(t, err, appendErr)

			_, err = repo.GetByID(context.Background(), 1)
			assert.ErrorIs(t, err, repository.ErrNotFound, "unreceipted submission must be discarded")
			assert.Empty(t, pub.events)
		})
	}
}

func TestFetch(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, waterReq())
	require.NoError(t, err)

	byID, err := f.svc.Fetch(ctx, r.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, r, byID)

	byCode, err := f.svc.FetchByShortCode(ctx, strings.ToLower(r.ShortCode))
	require.NoError(t, err)
	assert.Equal(t, r.ReceiptID, byCode.ReceiptID)

	_, err = f.svc.Fetch(ctx, uuid.New())
	assert.ErrorIs(t, err, receiptchain.ErrNotFound)
}

func TestStatusChangesDoNotAffectVerification(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, waterReq())
	require.NoError(t, err)

	_, err = f.svc.UpdateStatus(ctx, r.Submission.ID, model.StatusResolved)
	require.NoError(t, err)

	got, err := f.svc.Fetch(ctx, r.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusResolved, got.Submission.Status)
	assert.Equal(t, r.ReceiptHash, got.ReceiptHash)

	res, err := f.svc.Verify(ctx, r.ReceiptID.String())
	require.NoError(t, err)
	assert.True(t, res.Verified)
}

func TestWithdrawKeepsReceiptVerifiable(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r, err := f.svc.Submit(ctx, waterReq())
	require.NoError(t, err)

	require.NoError(t, f.svc.Withdraw(ctx, r.Submission.ID))
	assert.ErrorIs(t, f.svc.Withdraw(ctx, r.Submission.ID), repository.ErrNotFound)

	got, err := f.svc.Fetch(ctx, r.ReceiptID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWithdrawn, got.Submission.Status)

	res, err := f.svc.Verify(ctx, r.ShortCode)
	require.NoError(t, err)
	assert.Equal(t, model.VerificationOK, res.Verification)
}

func TestUpdateStatus_Invalid(t *testing.T) {
	f := newFixture()
	_, err := f.svc.UpdateStatus(context.Background(), 1, model.StatusWithdrawn)
	var valErr *model.ErrValidation
	assert.ErrorAs(t, err, &valErr)

	_, err = f.svc.UpdateStatus(context.Background(), 99, model.StatusResolved)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestVerify(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	r1, _ := f.svc.Submit(ctx, waterReq())
	r2, _ := f.svc.Submit(ctx, waterReq())

	res, err := f.svc.Verify(ctx, r1.ReceiptID.String())
	require.NoError(t, err)
	assert.Equal(t, model.VerificationOK, res.Verification)
	assert.Nil(t, res.PrevHash, "genesis link reports a null prev_hash")
	assert.True(t, res.ForwardLinkChecked)
	assert.Equal(t, int64(2), res.ChainLength)

	res, err = f.svc.Verify(ctx, strings.ToLower(r2.ShortCode))
	require.NoError(t, err)
	require.NotNil(t, res.PrevHash)
	assert.Equal(t, r1.ReceiptHash, *res.PrevHash)
	assert.False(t, res.ForwardLinkChecked)

	_, err = f.svc.Verify(ctx, "??")
	assert.ErrorIs(t, err, receiptchain.ErrInvalidShortCode)

	_, err = f.svc.Verify(ctx, "CP-ABCDEFGH")
	assert.ErrorIs(t, err, receiptchain.ErrNotFound)
}

func TestHeadAndAudit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	head, err := f.svc.Head(ctx)
	require.NoError(t, err)
	assert.Zero(t, head.Length)
	assert.Equal(t, receiptchain.GenesisHash, head.HeadHash)
	assert.Nil(t, head.Anchor)

	r, _ := f.svc.Submit(ctx, waterReq())
	att := &anchor.Attestation{Reference: "witness/1", AnchoredAt: time.Now()}
	f.svc.SetAnchorSource(fixedAnchor{att: att})

	head, err = f.svc.Head(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), head.Length)
	assert.Equal(t, r.ReceiptHash, head.HeadHash)
	assert.Equal(t, att, head.Anchor)

	link, err := f.svc.Link(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, r.ReceiptID, link.ReceiptID())

	report, err := f.svc.Audit(ctx)
	require.NoError(t, err)
	assert.True(t, report.Intact)
	assert.Equal(t, int64(1), report.Checked)
}

func TestListSubmissions(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = f.svc.Submit(ctx, waterReq())
	}
	_, _ = f.svc.UpdateStatus(ctx, 2, model.StatusAssigned)

	all, err := f.svc.ListSubmissions(ctx, "", 50, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	assigned, err := f.svc.ListSubmissions(ctx, model.StatusAssigned, 50, 0)
	require.NoError(t, err)
	require.Len(t, assigned, 1)
	assert.Equal(t, int64(2), assigned[0].ID)

	_, err = f.svc.ListSubmissions(ctx, "lost", 50, 0)
	var valErr *model.ErrValidation
	assert.ErrorAs(t, err, &valErr)
}
