package service_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/barterloop/barterloop/internal/domain"
	"github.com/barterloop/barterloop/internal/service"
	"github.com/barterloop/barterloop/internal/trust"
	"github.com/barterloop/barterloop/internal/txn"
)

// fakeRunner executes steps sequentially without a real transaction. The
// first failing step aborts the run, mirroring the executor's rollback
// semantics from the caller's point of view. The mutex is held for the whole
// run, standing in for the row lock that serializes real transitions on one
// trade.
type fakeRunner struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeRunner) Execute(ctx context.Context, steps []txn.Step, opts txn.Options) (*txn.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	results := make([]any, 0, len(steps))
	for _, step := range steps {
		res, err := step(ctx, nil)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return &txn.Result{
		Results:       results,
		Attempt:       1,
		ExecutionTime: time.Millisecond,
	}, nil
}

// memTradeStore keeps trades in a map. GetForUpdate hands out copies so a
// mutation only becomes visible through Update, like the real store.
type memTradeStore struct {
	trades map[uuid.UUID]*domain.Trade
}

func newMemTradeStore() *memTradeStore {
	return &memTradeStore{trades: make(map[uuid.UUID]*domain.Trade)}
}

func (m *memTradeStore) Create(ctx context.Context, tx pgx.Tx, trade *domain.Trade) error {
	cp := *trade
	m.trades[trade.ID] = &cp
	return nil
}

func (m *memTradeStore) GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Trade, error) {
	t, ok := m.trades[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memTradeStore) Update(ctx context.Context, tx pgx.Tx, trade *domain.Trade) error {
	if _, ok := m.trades[trade.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *trade
	m.trades[trade.ID] = &cp
	return nil
}

func (m *memTradeStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Trade, error) {
	return m.GetForUpdate(ctx, nil, id)
}

func (m *memTradeStore) List(ctx context.Context, filter domain.TradeFilter, opts domain.ListOpts) ([]domain.Trade, error) {
	var out []domain.Trade
	for _, t := range m.trades {
		out = append(out, *t)
	}
	return out, nil
}

// memObjectStore implements domain.ObjectReservation over a map, with the
// same validate-everything-then-mutate shape as the real store.
type memObjectStore struct {
	objects map[uuid.UUID]*domain.Object
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: make(map[uuid.UUID]*domain.Object)}
}

func (m *memObjectStore) add(owner uuid.UUID, status domain.ObjectStatus) uuid.UUID {
	id := uuid.New()
	m.objects[id] = &domain.Object{ID: id, Owner: owner, Status: status}
	return id
}

func (m *memObjectStore) status(id uuid.UUID) domain.ObjectStatus {
	return m.objects[id].Status
}

func (m *memObjectStore) Reserve(ctx context.Context, tx pgx.Tx, ids []uuid.UUID, expectedOwner uuid.UUID, expectedStatus domain.ObjectStatus) error {
	for _, id := range ids {
		obj, ok := m.objects[id]
		if !ok {
			return domain.ErrNotFound
		}
		if obj.Owner != expectedOwner || obj.Status != expectedStatus {
			return domain.ErrConflict
		}
	}
	for _, id := range ids {
		m.objects[id].Status = domain.ObjectStatusPending
	}
	return nil
}

func (m *memObjectStore) Release(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, ok := m.objects[id]; !ok {
			return domain.ErrConflict
		}
		m.objects[id].Status = domain.ObjectStatusAvailable
	}
	return nil
}

func (m *memObjectStore) Finalize(ctx context.Context, tx pgx.Tx, ids []uuid.UUID) error {
	for _, id := range ids {
		if _, ok := m.objects[id]; !ok {
			return domain.ErrConflict
		}
		m.objects[id].Status = domain.ObjectStatusTraded
	}
	return nil
}

// memUserStore implements domain.UserStore with counter tracking.
type memUserStore struct {
	users map[uuid.UUID]*domain.User
}

func newMemUserStore(users ...*domain.User) *memUserStore {
	m := &memUserStore{users: make(map[uuid.UUID]*domain.User)}
	for _, u := range users {
		m.users[u.ID] = u
	}
	return m
}

func (m *memUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserStore) IncrementTotals(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID) error {
	for _, id := range userIDs {
		m.users[id].Stats.Total++
	}
	return nil
}

func (m *memUserStore) IncrementCompleted(ctx context.Context, tx pgx.Tx, userIDs []uuid.UUID) error {
	for _, id := range userIDs {
		m.users[id].Stats.Completed++
	}
	return nil
}

func (m *memUserStore) IncrementViolations(ctx context.Context, tx pgx.Tx, userID uuid.UUID) error {
	m.users[userID].Stats.Violations++
	return nil
}

// memAuditStore records lifecycle events in order.
type memAuditStore struct {
	events []string
}

func (m *memAuditStore) LogTx(ctx context.Context, tx pgx.Tx, event string, detail map[string]any) error {
	m.events = append(m.events, event)
	return nil
}

func (m *memAuditStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (m *memAuditStore) last() string {
	if len(m.events) == 0 {
		return ""
	}
	return m.events[len(m.events)-1]
}

// stubRisk returns a fixed assessment and records invalidations.
type stubRisk struct {
	assessment  *domain.RiskAssessment
	err         error
	invalidated []uuid.UUID
}

func (s *stubRisk) AnalyzeRisk(ctx context.Context, fromID, toID uuid.UUID) (*domain.RiskAssessment, error) {
	if s.err != nil {
		return nil, s.err
	}
	cp := *s.assessment
	return &cp, nil
}

func (s *stubRisk) Invalidate(ctx context.Context, userIDs ...uuid.UUID) {
	s.invalidated = append(s.invalidated, userIDs...)
}

// fixture bundles a service wired to in-memory stores with two users and
// their objects.
type fixture struct {
	svc     *service.TradeService
	runner  *fakeRunner
	trades  *memTradeStore
	objects *memObjectStore
	users   *memUserStore
	audit   *memAuditStore
	risk    *stubRisk

	from, to  uuid.UUID
	requested []uuid.UUID
	offered   []uuid.UUID
}

func lowRiskAssessment() *domain.RiskAssessment {
	return &domain.RiskAssessment{
		ScoreFrom:   90,
		ScoreTo:     85,
		LowestScore: 85,
		Security:    trust.Constraints(domain.RiskLevelLow),
	}
}

func newFixture(t *testing.T, assessment *domain.RiskAssessment) *fixture {
	t.Helper()

	from := uuid.New()
	to := uuid.New()

	objects := newMemObjectStore()
	f := &fixture{
		runner:  &fakeRunner{},
		trades:  newMemTradeStore(),
		objects: objects,
		users: newMemUserStore(
			&domain.User{ID: from, Stats: domain.TradeStats{Completed: 10, Total: 10}},
			&domain.User{ID: to, Stats: domain.TradeStats{Completed: 10, Total: 10}},
		),
		audit: &memAuditStore{},
		risk:  &stubRisk{assessment: assessment},
		from:  from,
		to:    to,
		requested: []uuid.UUID{
			objects.add(to, domain.ObjectStatusAvailable),
			objects.add(to, domain.ObjectStatusAvailable),
		},
		offered: []uuid.UUID{
			objects.add(from, domain.ObjectStatusAvailable),
		},
	}

	f.svc = service.NewTradeService(
		f.runner, f.trades, f.objects, f.users, f.risk, f.audit,
		service.EscrowConfig{
			BaseAmount:   decimal.RequireFromString("25.00"),
			HoldDuration: 14 * 24 * time.Hour,
		},
		slog.New(slog.DiscardHandler),
	)
	return f
}

func (f *fixture) create(t *testing.T) *domain.Trade {
	t.Helper()
	res, err := f.svc.Create(context.Background(), service.CreateParams{
		FromUser:  f.from,
		ToUser:    f.to,
		Requested: f.requested,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return res.Trade
}

// advance drives a fresh trade to the given status along the happy path.
func (f *fixture) advance(t *testing.T, target domain.TradeStatus) *domain.Trade {
	t.Helper()
	ctx := context.Background()

	trade := f.create(t)
	if target == domain.TradeStatusPending {
		return trade
	}

	res, err := f.svc.Propose(ctx, trade.ID, f.to, f.offered)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if target == domain.TradeStatusProposed {
		return res.Trade
	}

	res, err = f.svc.Accept(ctx, trade.ID, f.from)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if target == domain.TradeStatusAccepted {
		return res.Trade
	}

	if res.Trade.Security.RequiresEscrow {
		res, err = f.svc.Secure(ctx, trade.ID, f.from)
		if err != nil {
			t.Fatalf("Secure: %v", err)
		}
	}
	if target == domain.TradeStatusSecured {
		return res.Trade
	}

	res, err = f.svc.Ship(ctx, trade.ID, f.from, "TRACK-1")
	if err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if target == domain.TradeStatusShipped {
		return res.Trade
	}

	t.Fatalf("advance: unsupported target %s", target)
	return nil
}

func TestCreateReservesRequestedObjects(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())

	trade := f.create(t)

	if trade.Status != domain.TradeStatusPending {
		t.Errorf("status = %s, want pending", trade.Status)
	}
	for _, id := range f.requested {
		if got := f.objects.status(id); got != domain.ObjectStatusPending {
			t.Errorf("requested object %s status = %s, want pending", id, got)
		}
	}
	// Offered objects were not attached, so they stay available.
	if got := f.objects.status(f.offered[0]); got != domain.ObjectStatusAvailable {
		t.Errorf("offered object status = %s, want available", got)
	}
	if f.audit.last() != "trade.created" {
		t.Errorf("audit event = %q, want trade.created", f.audit.last())
	}
	if _, err := f.trades.GetByID(context.Background(), trade.ID); err != nil {
		t.Errorf("trade not persisted: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())
	ctx := context.Background()

	tests := []struct {
		name   string
		params service.CreateParams
		want   error
	}{
		{
			"missing user",
			service.CreateParams{ToUser: f.to, Requested: f.requested},
			domain.ErrInvalidArgument,
		},
		{
			"self trade",
			service.CreateParams{FromUser: f.from, ToUser: f.from, Requested: f.requested},
			domain.ErrInvalidArgument,
		},
		{
			"empty requested",
			service.CreateParams{FromUser: f.from, ToUser: f.to},
			domain.ErrInvalidArgument,
		},
		{
			"unknown user",
			service.CreateParams{FromUser: f.from, ToUser: uuid.New(), Requested: f.requested},
			domain.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tt.params)
			if !errors.Is(err, tt.want) {
				t.Errorf("Create error = %v, want %v", err, tt.want)
			}
		})
	}

	// Validation failures never reach the executor.
	if f.runner.calls != 0 {
		t.Errorf("runner ran %d times for invalid input, want 0", f.runner.calls)
	}
}

func TestCreateRejectsForeignObjects(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())

	// Requested objects must belong to the recipient.
	alien := f.objects.add(uuid.New(), domain.ObjectStatusAvailable)
	_, err := f.svc.Create(context.Background(), service.CreateParams{
		FromUser:  f.from,
		ToUser:    f.to,
		Requested: []uuid.UUID{alien},
	})
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Create error = %v, want ErrConflict", err)
	}
}

func TestProposeReplacesOfferedSet(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())
	ctx := context.Background()

	trade := f.create(t)

	first := f.offered
	res, err := f.svc.Propose(ctx, trade.ID, f.to, first)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if res.Trade.Status != domain.TradeStatusProposed {
		t.Errorf("status = %s, want proposed", res.Trade.Status)
	}
	if got := f.objects.status(first[0]); got != domain.ObjectStatusPending {
		t.Errorf("offered object status = %s, want pending", got)
	}

	// A revised counter-offer releases the previous set.
	second := []uuid.UUID{f.objects.add(f.from, domain.ObjectStatusAvailable)}
	res, err = f.svc.Propose(ctx, trade.ID, f.to, second)
	if err != nil {
		t.Fatalf("Propose (revision): %v", err)
	}
	if got := f.objects.status(first[0]); got != domain.ObjectStatusAvailable {
		t.Errorf("replaced offered object status = %s, want available", got)
	}
	if got := f.objects.status(second[0]); got != domain.ObjectStatusPending {
		t.Errorf("new offered object status = %s, want pending", got)
	}
	if len(res.Trade.OfferedObjects) != 1 || res.Trade.OfferedObjects[0] != second[0] {
		t.Errorf("OfferedObjects = %v, want %v", res.Trade.OfferedObjects, second)
	}
}

func TestProposeAuthorization(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())
	ctx := context.Background()
	trade := f.create(t)

	// The original proposer cannot counter-offer their own request.
	_, err := f.svc.Propose(ctx, trade.ID, f.from, f.offered)
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Propose by proposer error = %v, want ErrForbidden", err)
	}

	_, err = f.svc.Propose(ctx, trade.ID, f.to, nil)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Errorf("Propose with empty offer error = %v, want ErrInvalidArgument", err)
	}
}

func TestAcceptSnapshotsSecurity(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())
	ctx := context.Background()

	trade := f.advance(t, domain.TradeStatusProposed)

	res, err := f.svc.Accept(ctx, trade.ID, f.from)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}

	got := res.Trade
	if got.Status != domain.TradeStatusAccepted {
		t.Errorf("status = %s, want accepted", got.Status)
	}
	if got.Security == nil || got.Security.RiskLevel != domain.RiskLevelLow {
		t.Fatalf("security snapshot = %+v, want LOW_RISK", got.Security)
	}
	if got.AcceptedAt == nil {
		t.Error("AcceptedAt not set")
	}

	// Both total counters moved in the same scope.
	for _, id := range []uuid.UUID{f.from, f.to} {
		if f.users.users[id].Stats.Total != 11 {
			t.Errorf("user %s total = %d, want 11", id, f.users.users[id].Stats.Total)
		}
	}

	// Cached scores were invalidated after the commit.
	if len(f.risk.invalidated) != 2 {
		t.Errorf("invalidated %d users, want 2", len(f.risk.invalidated))
	}
}

func TestAcceptAuthorizationAndState(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())
	ctx := context.Background()

	// Accepting a pending trade (no counter-offer yet) conflicts.
	pending := f.create(t)
	if _, err := f.svc.Accept(ctx, pending.ID, f.from); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Accept pending error = %v, want ErrConflict", err)
	}

	f2 := newFixture(t, lowRiskAssessment())
	proposed := f2.advance(t, domain.TradeStatusProposed)

	// Only the original proposer may accept.
	if _, err := f2.svc.Accept(ctx, proposed.ID, f2.to); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Accept by recipient error = %v, want ErrForbidden", err)
	}
	// A stranger is rejected too.
	if _, err := f2.svc.Accept(ctx, proposed.ID, uuid.New()); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Accept by stranger error = %v, want ErrForbidden", err)
	}
}

func TestRefuseReleasesReservations(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())
	ctx := context.Background()

	trade := f.advance(t, domain.TradeStatusProposed)

	// Only the recipient may refuse.
	if _, err := f.svc.Refuse(ctx, trade.ID, f.from); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Refuse by proposer error = %v, want ErrForbidden", err)
	}

	res, err := f.svc.Refuse(ctx, trade.ID, f.to)
	if err != nil {
		t.Fatalf("Refuse: %v", err)
	}
	if res.Trade.Status != domain.TradeStatusRefused {
		t.Errorf("status = %s, want refused", res.Trade.Status)
	}
	for _, id := range append(f.requested, f.offered...) {
		if got := f.objects.status(id); got != domain.ObjectStatusAvailable {
			t.Errorf("object %s status = %s, want available after refusal", id, got)
		}
	}
	if res.Trade.RefusedAt == nil {
		t.Error("RefusedAt not set")
	}
}

func TestCancelStateGuards(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())
	ctx := context.Background()

	trade := f.create(t)

	// A stranger cannot cancel.
	if _, err := f.svc.Cancel(ctx, trade.ID, uuid.New()); !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("Cancel by stranger error = %v, want ErrForbidden", err)
	}

	// Either participant can.
	res, err := f.svc.Cancel(ctx, trade.ID, f.from)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if res.Trade.Status != domain.TradeStatusCancelled {
		t.Errorf("status = %s, want cancelled", res.Trade.Status)
	}

	// Terminal trades reject further transitions.
	if _, err := f.svc.Cancel(ctx, trade.ID, f.from); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Cancel cancelled trade error = %v, want ErrConflict", err)
	}
	if _, err := f.svc.Propose(ctx, trade.ID, f.to, f.offered); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("Propose cancelled trade error = %v, want ErrConflict", err)
	}
}

func TestConfirmReceiptHandshake(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())
	ctx := context.Background()

	trade := f.advance(t, domain.TradeStatusShipped)

	// First confirmation keeps the trade shipped.
	res, err := f.svc.ConfirmReceipt(ctx, trade.ID, f.from)
	if err != nil {
		t.Fatalf("ConfirmReceipt: %v", err)
	}
	if res.Trade.Status != domain.TradeStatusShipped {
		t.Errorf("status after one confirmation = %s, want shipped", res.Trade.Status)
	}

	// Confirming twice conflicts.
	if _, err := f.svc.ConfirmReceipt(ctx, trade.ID, f.from); !errors.Is(err, domain.ErrConflict) {
		t.Errorf("double confirmation error = %v, want ErrConflict", err)
	}

	// Second party's confirmation completes the trade.
	res, err = f.svc.ConfirmReceipt(ctx, trade.ID, f.to)
	if err != nil {
		t.Fatalf("ConfirmReceipt: %v", err)
	}
	if res.Trade.Status != domain.TradeStatusCompleted {
		t.Errorf("status = %s, want completed", res.Trade.Status)
	}
	for _, id := range append(f.requested, f.offered...) {
		if got := f.objects.status(id); got != domain.ObjectStatusTraded {
			t.Errorf("object %s status = %s, want traded", id, got)
		}
	}
	for _, id := range []uuid.UUID{f.from, f.to} {
		if f.users.users[id].Stats.Completed != 11 {
			t.Errorf("user %s completed = %d, want 11", id, f.users.users[id].Stats.Completed)
		}
	}
	if f.audit.last() != "trade.completed" {
		t.Errorf("audit event = %q, want trade.completed", f.audit.last())
	}
}

func TestConfirmReceiptRequiresShipped(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())

	trade := f.advance(t, domain.TradeStatusAccepted)
	_, err := f.svc.ConfirmReceipt(context.Background(), trade.ID, f.from)
	if !errors.Is(err, domain.ErrConflict) {
		t.Errorf("ConfirmReceipt on accepted error = %v, want ErrConflict", err)
	}
}

func TestSecuritySnapshotSurvivesStatsChanges(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())
	ctx := context.Background()

	trade := f.advance(t, domain.TradeStatusAccepted)

	// The counterparty's history degrades after acceptance; a fresh
	// assessment would now come back HIGH_RISK.
	f.users.users[f.to].Stats.Violations = 6
	f.risk.assessment = highRiskAssessment()

	got, err := f.svc.GetTrade(ctx, trade.ID)
	if err != nil {
		t.Fatalf("GetTrade: %v", err)
	}
	if got.Security.RiskLevel != domain.RiskLevelLow {
		t.Errorf("snapshot risk level = %s, want LOW_RISK", got.Security.RiskLevel)
	}
	if got.Security.RequiresEscrow {
		t.Error("snapshot gained an escrow requirement after acceptance")
	}

	// The in-flight trade still ships under its original constraints.
	res, err := f.svc.Ship(ctx, trade.ID, f.from, "")
	if err != nil {
		t.Fatalf("Ship: %v", err)
	}
	if res.Trade.Status != domain.TradeStatusShipped {
		t.Errorf("status = %s, want shipped", res.Trade.Status)
	}
}

func TestConcurrentTransitionsSingleWinner(t *testing.T) {
	f := newFixture(t, lowRiskAssessment())
	ctx := context.Background()

	trade := f.advance(t, domain.TradeStatusProposed)

	var (
		wg                   sync.WaitGroup
		acceptErr, cancelErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, acceptErr = f.svc.Accept(ctx, trade.ID, f.from)
	}()
	go func() {
		defer wg.Done()
		_, cancelErr = f.svc.Cancel(ctx, trade.ID, f.to)
	}()
	wg.Wait()

	if (acceptErr == nil) == (cancelErr == nil) {
		t.Fatalf("want exactly one winner; accept err = %v, cancel err = %v", acceptErr, cancelErr)
	}

	got, err := f.trades.GetByID(ctx, trade.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if acceptErr == nil {
		if !errors.Is(cancelErr, domain.ErrConflict) {
			t.Errorf("losing cancel error = %v, want ErrConflict", cancelErr)
		}
		if got.Status != domain.TradeStatusAccepted {
			t.Errorf("status = %s, want accepted", got.Status)
		}
	} else {
		if !errors.Is(acceptErr, domain.ErrConflict) {
			t.Errorf("losing accept error = %v, want ErrConflict", acceptErr)
		}
		if got.Status != domain.TradeStatusCancelled {
			t.Errorf("status = %s, want cancelled", got.Status)
		}
	}
}
