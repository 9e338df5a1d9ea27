package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"coinsettle/internal/domain"
	"coinsettle/internal/usecase/ledger"
	"coinsettle/internal/usecase/processor"
)

const testToken = "test-token"

// MockLedgerRepository is a mock implementation of domain.LedgerRepository for testing
type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) GetAccount(ctx context.Context, tenantID, holderID string) (*domain.LedgerAccount, error) {
	args := m.Called(ctx, tenantID, holderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.LedgerAccount), args.Error(1)
}

func (m *MockLedgerRepository) UpsertBalance(ctx context.Context, tenantID, holderID string, balance decimal.Decimal) error {
	args := m.Called(ctx, tenantID, holderID, balance)
	return args.Error(0)
}

func (m *MockLedgerRepository) UpsertBalancePair(ctx context.Context, tenantID, fromHolder string, fromBalance decimal.Decimal, toHolder string, toBalance decimal.Decimal) error {
	args := m.Called(ctx, tenantID, fromHolder, fromBalance, toHolder, toBalance)
	return args.Error(0)
}

func (m *MockLedgerRepository) LinkCard(ctx context.Context, tenantID, holderID, card string) error {
	args := m.Called(ctx, tenantID, holderID, card)
	return args.Error(0)
}

// MockJobRepository is a mock implementation of domain.JobRepository for testing
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Insert(ctx context.Context, job *domain.Job) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.JobStatus, processedAt *time.Time) error {
	args := m.Called(ctx, id, status, processedAt)
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Job), args.Error(1)
}

func (m *MockJobRepository) ListUnfinished(ctx context.Context) ([]*domain.Job, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Job), args.Error(1)
}

// MockSettlementClient is a mock implementation of domain.SettlementClient for testing
type MockSettlementClient struct {
	mock.Mock
}

func (m *MockSettlementClient) TransferToUser(ctx context.Context, sourceCard, toUserID, amount string) (*domain.SettlementResult, error) {
	args := m.Called(ctx, sourceCard, toUserID, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SettlementResult), args.Error(1)
}

func (m *MockSettlementClient) TransferToAccount(ctx context.Context, fromCard, toCard, amount string) (*domain.SettlementResult, error) {
	args := m.Called(ctx, fromCard, toCard, amount)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.SettlementResult), args.Error(1)
}

func (m *MockSettlementClient) AccountStatus(ctx context.Context, card string) (*domain.AccountStatus, error) {
	args := m.Called(ctx, card)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.AccountStatus), args.Error(1)
}

// fakeQueue resolves every submitted job successfully, continuation first.
type fakeQueue struct{}

func (q *fakeQueue) Submit(ctx context.Context, job *domain.Job, onResult func(processor.Outcome)) (uuid.UUID, <-chan processor.Outcome, error) {
	if err := job.Validate(); err != nil {
		return uuid.Nil, nil, err
	}
	job.ID = uuid.New()
	out := processor.Outcome{
		JobID:  job.ID,
		Result: &domain.SettlementResult{TxID: "tx-ok", CompletedAt: time.Now().UTC()},
	}
	if onResult != nil {
		onResult(out)
	}
	ch := make(chan processor.Outcome, 1)
	ch <- out
	return job.ID, ch, nil
}

func newTestRouter(accounts domain.LedgerRepository, jobs domain.JobRepository, client domain.SettlementClient) http.Handler {
	service := ledger.NewService(accounts, client, &fakeQueue{}, decimal.RequireFromString("0.00000001"), nil)
	return NewRouter(NewHandler(service, jobs, nil), testToken)
}

func doRequest(t *testing.T, router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestAuth_MissingOrInvalidToken(t *testing.T) {
	router := newTestRouter(new(MockLedgerRepository), new(MockJobRepository), new(MockSettlementClient))

	rec := doRequest(t, router, http.MethodGet, "/api/v1/accounts/guild-1/alice/balance", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/accounts/guild-1/alice/balance", "wrong-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth_OpenWithoutToken(t *testing.T) {
	router := newTestRouter(new(MockLedgerRepository), new(MockJobRepository), new(MockSettlementClient))

	rec := doRequest(t, router, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGetBalance_AbsentAccountReadsZero(t *testing.T) {
	accounts := new(MockLedgerRepository)
	accounts.On("GetAccount", mock.Anything, "guild-1", "alice").
		Return(nil, fmt.Errorf("%w: guild-1/alice", domain.ErrAccountNotFound))

	router := newTestRouter(accounts, new(MockJobRepository), new(MockSettlementClient))

	rec := doRequest(t, router, http.MethodGet, "/api/v1/accounts/guild-1/alice/balance", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "0.00", body["balance"])
}

func TestGetJob(t *testing.T) {
	jobs := new(MockJobRepository)
	id := uuid.New()
	processedAt := time.Now().UTC()
	jobs.On("GetByID", mock.Anything, id).Return(&domain.Job{
		ID:          id,
		TenantID:    "guild-1",
		HolderID:    "alice",
		Kind:        domain.JobKindAccountToUser,
		Status:      domain.JobStatusCompleted,
		CreatedAt:   processedAt.Add(-time.Second),
		ProcessedAt: &processedAt,
	}, nil)
	missing := uuid.New()
	jobs.On("GetByID", mock.Anything, missing).
		Return(nil, fmt.Errorf("%w: %s", domain.ErrJobNotFound, missing))

	router := newTestRouter(new(MockLedgerRepository), jobs, new(MockSettlementClient))

	rec := doRequest(t, router, http.MethodGet, "/api/v1/jobs/"+id.String(), testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "completed", body["status"])
	assert.Equal(t, "account_to_user", body["kind"])

	rec = doRequest(t, router, http.MethodGet, "/api/v1/jobs/"+missing.String(), testToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/jobs/not-a-uuid", testToken, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithdraw_FullFlow(t *testing.T) {
	accounts := new(MockLedgerRepository)
	// Tenant's coin pool card.
	accounts.On("GetAccount", mock.Anything, "guild-1", "guild-1").
		Return(&domain.LedgerAccount{
			TenantID:    "guild-1",
			HolderID:    "guild-1",
			LinkedCard:  "CARD-T",
			FiatBalance: decimal.Zero,
		}, nil)
	// Holder account is created implicitly by the post-settlement credit.
	accounts.On("GetAccount", mock.Anything, "guild-1", "alice").
		Return(nil, fmt.Errorf("%w: guild-1/alice", domain.ErrAccountNotFound))
	accounts.On("UpsertBalance", mock.Anything, "guild-1", "alice", mock.MatchedBy(func(d decimal.Decimal) bool {
		return d.Equal(decimal.RequireFromString("10.00"))
	})).Return(nil)

	client := new(MockSettlementClient)
	client.On("AccountStatus", mock.Anything, "CARD-T").
		Return(&domain.AccountStatus{Coins: decimal.RequireFromString("1")}, nil)

	router := newTestRouter(accounts, new(MockJobRepository), client)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/transfers/withdraw", testToken, map[string]string{
		"tenant": "guild-1",
		"holder": "alice",
		"toId":   "9001",
		"amount": "10.00",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "tx-ok", body["tx_id"])
	assert.NotEmpty(t, body["job_id"])

	accounts.AssertExpectations(t)
}

func TestPay_InsufficientBalance(t *testing.T) {
	accounts := new(MockLedgerRepository)
	accounts.On("GetAccount", mock.Anything, "guild-1", "alice").
		Return(&domain.LedgerAccount{
			TenantID:    "guild-1",
			HolderID:    "alice",
			FiatBalance: decimal.RequireFromString("5.00"),
		}, nil)
	accounts.On("GetAccount", mock.Anything, "guild-1", "bob").
		Return(nil, fmt.Errorf("%w: guild-1/bob", domain.ErrAccountNotFound))

	router := newTestRouter(accounts, new(MockJobRepository), new(MockSettlementClient))

	rec := doRequest(t, router, http.MethodPost, "/api/v1/transfers/pay", testToken, map[string]string{
		"tenant": "guild-1",
		"from":   "alice",
		"to":     "bob",
		"amount": "10.00",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "You don't have enough balance.", body["error"])
}

func TestGive_InvalidAmount(t *testing.T) {
	router := newTestRouter(new(MockLedgerRepository), new(MockJobRepository), new(MockSettlementClient))

	rec := doRequest(t, router, http.MethodPost, "/api/v1/accounts/guild-1/alice/give", testToken, map[string]string{
		"amount": "-5",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{domain.ErrInvalidAmount, http.StatusBadRequest},
		{domain.ErrInsufficientBalance, http.StatusUnprocessableEntity},
		{domain.ErrAccountNotFound, http.StatusNotFound},
		{domain.ErrJobNotFound, http.StatusNotFound},
		{domain.ErrSettlementUnavailable, http.StatusBadGateway},
		{domain.ErrQueueClosed, http.StatusServiceUnavailable},
		{fmt.Errorf("wrapped: %w", domain.ErrInvalidAmount), http.StatusBadRequest},
		{fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.want, statusForError(tc.err), tc.err.Error())
	}
}
