package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vostoklab/workshop_backend/models"
	"github.com/vostoklab/workshop_backend/session"
	"github.com/vostoklab/workshop_backend/utils"
)

type fakeBackend struct {
	receipts  map[string]*models.Receipt
	reasons   []*models.ReturnReason
	employees map[int]*models.Employee

	created   []*models.NewReturn
	createErr error
	nextId    int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		receipts: map[string]*models.Receipt{},
		reasons: []*models.ReturnReason{
			{ID: 1, Code: "dirt_inside", Name: "Dirt inside", Affects: models.AffectsAssembly},
			{ID: 2, Code: "mechanism_defect", Name: "Mechanism defect", Affects: models.AffectsMechanism},
			{ID: 6, Code: models.AttributionReasonCode, Name: "Polishing", Affects: models.AffectsPolishing},
		},
		employees: map[int]*models.Employee{
			10: {ID: 10, Name: "Vera", Role: models.RolePolisher, IsActive: true},
			11: {ID: 11, Name: "Oleg", Role: models.RolePolisher, IsActive: false},
			12: {ID: 12, Name: "Dima", Role: models.RoleAssembler, IsActive: true},
		},
		nextId: 1,
	}
}

func (f *fakeBackend) GetOrCreateReceipt(ctx context.Context, receiptNumber string) (*models.Receipt, error) {
	if receipt, ok := f.receipts[receiptNumber]; ok {
		return receipt, nil
	}
	receipt := &models.Receipt{ID: len(f.receipts) + 1, ReceiptNumber: receiptNumber}
	f.receipts[receiptNumber] = receipt
	return receipt, nil
}

func (f *fakeBackend) GetReturnReasons(ctx context.Context) ([]*models.ReturnReason, error) {
	return f.reasons, nil
}

func (f *fakeBackend) GetEmployee(ctx context.Context, id int) (*models.Employee, error) {
	employee, ok := f.employees[id]
	if !ok {
		return nil, utils.NotFoundError("employee %d not found", id)
	}
	return employee, nil
}

func (f *fakeBackend) CreateReturn(ctx context.Context, input *models.NewReturn) (*models.Return, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, input)
	r := &models.Return{ID: f.nextId, ReceiptId: input.ReceiptId, Comment: input.Comment}
	f.nextId++
	return r, nil
}

func newTestFlow() (*ReturnFlow, *fakeBackend, *session.MemoryStore) {
	backend := newFakeBackend()
	store := session.NewMemoryStore()
	flow := NewReturnFlow(store, quietLogger())
	flow.Backend = backend
	return flow, backend, store
}

// driveToSelectingReasons walks a fresh session to reason selection.
func driveToSelectingReasons(t *testing.T, flow *ReturnFlow) {
	t.Helper()
	ctx := context.Background()
	_, err := flow.Start(ctx, "chat1")
	require.NoError(t, err)
	_, err = flow.SetReceipt(ctx, "chat1", "RN-100")
	require.NoError(t, err)
	_, err = flow.ChooseReturn(ctx, "chat1")
	require.NoError(t, err)
}

func TestReturnFlowHappyPathWithoutAttribution(t *testing.T) {
	flow, backend, _ := newTestFlow()
	ctx := context.Background()
	driveToSelectingReasons(t, flow)

	_, err := flow.ToggleReason(ctx, "chat1", 1)
	require.NoError(t, err)
	_, err = flow.ToggleReason(ctx, "chat1", 2)
	require.NoError(t, err)

	sess, err := flow.FinishReasons(ctx, "chat1")
	require.NoError(t, err)
	require.Equal(t, StateConfirmingReturn, sess.State)

	sess, created, err := flow.Confirm(ctx, "chat1", "scratched case")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, sess.State)
	require.NotNil(t, created)

	require.Len(t, backend.created, 1)
	input := backend.created[0]
	require.Equal(t, "scratched case", input.Comment)
	require.Len(t, input.Reasons, 2)
	for _, link := range input.Reasons {
		require.Nil(t, link.GuiltyEmployeeId)
	}
}

func TestReturnFlowAttributionBranch(t *testing.T) {
	flow, backend, _ := newTestFlow()
	ctx := context.Background()
	driveToSelectingReasons(t, flow)

	_, err := flow.ToggleReason(ctx, "chat1", 1)
	require.NoError(t, err)
	_, err = flow.ToggleReason(ctx, "chat1", 6)
	require.NoError(t, err)

	sess, err := flow.FinishReasons(ctx, "chat1")
	require.NoError(t, err)
	require.Equal(t, StateSelectingResponsibleRole, sess.State)

	sess, err = flow.ChooseResponsibleRole(ctx, "chat1", models.RolePolisher)
	require.NoError(t, err)
	require.Equal(t, StateSelectingResponsibleParty, sess.State)

	sess, err = flow.ChooseResponsibleParty(ctx, "chat1", 10)
	require.NoError(t, err)
	require.Equal(t, StateConfirmingReturn, sess.State)

	_, _, err = flow.Confirm(ctx, "chat1", "")
	require.NoError(t, err)

	require.Len(t, backend.created, 1)
	// Only the polishing link carries the responsible employee.
	for _, link := range backend.created[0].Reasons {
		if link.ReasonId == 6 {
			require.NotNil(t, link.GuiltyEmployeeId)
			require.Equal(t, 10, *link.GuiltyEmployeeId)
		} else {
			require.Nil(t, link.GuiltyEmployeeId)
		}
	}
}

func TestReturnFlowToggleTwiceDeselects(t *testing.T) {
	flow, _, _ := newTestFlow()
	ctx := context.Background()
	driveToSelectingReasons(t, flow)

	_, err := flow.ToggleReason(ctx, "chat1", 1)
	require.NoError(t, err)
	sess, err := flow.ToggleReason(ctx, "chat1", 1)
	require.NoError(t, err)
	require.Empty(t, sess.SelectedReasonIds)

	_, err = flow.FinishReasons(ctx, "chat1")
	require.Error(t, err)
	require.Equal(t, utils.KindValidation, utils.KindOf(err))
}

func TestReturnFlowRejectsUnknownRole(t *testing.T) {
	flow, _, _ := newTestFlow()
	ctx := context.Background()
	driveToSelectingReasons(t, flow)

	_, err := flow.ToggleReason(ctx, "chat1", 6)
	require.NoError(t, err)
	_, err = flow.FinishReasons(ctx, "chat1")
	require.NoError(t, err)

	_, err = flow.ChooseResponsibleRole(ctx, "chat1", "master")
	require.Error(t, err)
	require.Equal(t, utils.KindValidation, utils.KindOf(err))
}

func TestReturnFlowRejectsInactiveEmployee(t *testing.T) {
	flow, _, _ := newTestFlow()
	ctx := context.Background()
	driveToSelectingReasons(t, flow)

	_, err := flow.ToggleReason(ctx, "chat1", 6)
	require.NoError(t, err)
	_, err = flow.FinishReasons(ctx, "chat1")
	require.NoError(t, err)
	_, err = flow.ChooseResponsibleRole(ctx, "chat1", models.RolePolisher)
	require.NoError(t, err)

	_, err = flow.ChooseResponsibleParty(ctx, "chat1", 11)
	require.Error(t, err)
	require.Equal(t, utils.KindValidation, utils.KindOf(err))

	// Still waiting for a valid pick.
	sess, err := flow.Get(ctx, "chat1")
	require.NoError(t, err)
	require.Equal(t, StateSelectingResponsibleParty, sess.State)
}

func TestReturnFlowRejectsEmployeeOutsideChosenRole(t *testing.T) {
	flow, _, _ := newTestFlow()
	ctx := context.Background()
	driveToSelectingReasons(t, flow)

	_, err := flow.ToggleReason(ctx, "chat1", 6)
	require.NoError(t, err)
	_, err = flow.FinishReasons(ctx, "chat1")
	require.NoError(t, err)
	_, err = flow.ChooseResponsibleRole(ctx, "chat1", models.RolePolisher)
	require.NoError(t, err)

	// 12 is an active assembler; the chosen category is polisher.
	_, err = flow.ChooseResponsibleParty(ctx, "chat1", 12)
	require.Error(t, err)
	require.Equal(t, utils.KindValidation, utils.KindOf(err))

	sess, err := flow.Get(ctx, "chat1")
	require.NoError(t, err)
	require.Equal(t, StateSelectingResponsibleParty, sess.State)
	require.Nil(t, sess.ResponsibleEmployeeId)

	// An employee of the chosen role is accepted.
	sess, err = flow.ChooseResponsibleParty(ctx, "chat1", 10)
	require.NoError(t, err)
	require.Equal(t, StateConfirmingReturn, sess.State)
}

func TestReturnFlowCommitFailureKeepsSession(t *testing.T) {
	flow, backend, _ := newTestFlow()
	ctx := context.Background()
	driveToSelectingReasons(t, flow)

	_, err := flow.ToggleReason(ctx, "chat1", 1)
	require.NoError(t, err)
	_, err = flow.FinishReasons(ctx, "chat1")
	require.NoError(t, err)

	backend.createErr = utils.StorageError(errors.New("deadlock"))
	_, _, err = flow.Confirm(ctx, "chat1", "")
	require.Error(t, err)

	sess, err := flow.Get(ctx, "chat1")
	require.NoError(t, err)
	require.Equal(t, StateConfirmingReturn, sess.State)
	require.Equal(t, []int{1}, sess.SelectedReasonIds)

	// Retry succeeds without re-entering anything.
	backend.createErr = nil
	sess, created, err := flow.Confirm(ctx, "chat1", "second try")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, sess.State)
	require.NotNil(t, created)
}

// flakySessionStore fails writes on demand while staying readable.
type flakySessionStore struct {
	*session.MemoryStore
	failPut bool
}

func (s *flakySessionStore) Put(ctx context.Context, key string, value any, ttl time.Duration) error {
	if s.failPut {
		return errors.New("session store unavailable")
	}
	return s.MemoryStore.Put(ctx, key, value, ttl)
}

func TestReturnFlowSaveFailureAfterCommitDropsSession(t *testing.T) {
	backend := newFakeBackend()
	store := &flakySessionStore{MemoryStore: session.NewMemoryStore()}
	flow := NewReturnFlow(store, quietLogger())
	flow.Backend = backend

	ctx := context.Background()
	driveToSelectingReasons(t, flow)
	_, err := flow.ToggleReason(ctx, "chat1", 1)
	require.NoError(t, err)
	_, err = flow.FinishReasons(ctx, "chat1")
	require.NoError(t, err)

	store.failPut = true
	sess, created, err := flow.Confirm(ctx, "chat1", "")
	require.NoError(t, err)
	require.Equal(t, StateCompleted, sess.State)
	require.NotNil(t, created)
	require.Len(t, backend.created, 1)

	// The stale session is gone, so a retry cannot commit a second return.
	store.failPut = false
	_, _, err = flow.Confirm(ctx, "chat1", "")
	require.Error(t, err)
	require.Equal(t, utils.KindValidation, utils.KindOf(err))
	require.Len(t, backend.created, 1)
}

func TestReturnFlowStartAnotherKeepsReceipt(t *testing.T) {
	flow, _, _ := newTestFlow()
	ctx := context.Background()
	driveToSelectingReasons(t, flow)

	_, err := flow.ToggleReason(ctx, "chat1", 1)
	require.NoError(t, err)
	_, err = flow.FinishReasons(ctx, "chat1")
	require.NoError(t, err)
	_, _, err = flow.Confirm(ctx, "chat1", "")
	require.NoError(t, err)

	sess, err := flow.StartAnother(ctx, "chat1")
	require.NoError(t, err)
	require.Equal(t, StateSelectingReasons, sess.State)
	require.Equal(t, "RN-100", sess.ReceiptNumber)
	require.Empty(t, sess.SelectedReasonIds)
	require.Empty(t, sess.ResponsibleRole)
	require.Nil(t, sess.ResponsibleEmployeeId)
}

func TestReturnFlowCancelDiscards(t *testing.T) {
	flow, _, _ := newTestFlow()
	ctx := context.Background()
	driveToSelectingReasons(t, flow)

	require.NoError(t, flow.Cancel(ctx, "chat1"))
	_, err := flow.Get(ctx, "chat1")
	require.Error(t, err)
	require.Equal(t, utils.KindNotFound, utils.KindOf(err))
}

func TestReturnFlowWrongStateRejected(t *testing.T) {
	flow, _, _ := newTestFlow()
	ctx := context.Background()
	_, err := flow.Start(ctx, "chat1")
	require.NoError(t, err)

	_, err = flow.ToggleReason(ctx, "chat1", 1)
	require.Error(t, err)
	require.Equal(t, utils.KindValidation, utils.KindOf(err))
}

func TestReturnFlowSessionExpiryActsAsCancel(t *testing.T) {
	backend := newFakeBackend()
	store := session.NewMemoryStore()
	flow := NewReturnFlow(store, quietLogger())
	flow.Backend = backend
	flow.TTL = time.Hour

	ctx := context.Background()
	_, err := flow.Start(ctx, "chat1")
	require.NoError(t, err)

	store.Now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = flow.SetReceipt(ctx, "chat1", "RN-100")
	require.Error(t, err)
	require.Equal(t, utils.KindValidation, utils.KindOf(err))
}
