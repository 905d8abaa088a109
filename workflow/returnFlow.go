package workflow

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vostoklab/workshop_backend/models"
	"github.com/vostoklab/workshop_backend/session"
	"github.com/vostoklab/workshop_backend/utils"
)

// FlowState tags where a return conversation currently stands.
type FlowState string

const (
	StateAwaitingReceipt           FlowState = "awaiting_receipt"
	StateActionChosen              FlowState = "action_chosen"
	StateSelectingReasons          FlowState = "selecting_reasons"
	StateSelectingResponsibleRole  FlowState = "selecting_responsible_role"
	StateSelectingResponsibleParty FlowState = "selecting_responsible_party"
	StateConfirmingReturn          FlowState = "confirming_return"
	StateCompleted                 FlowState = "completed"
)

// ReturnSession is the per-chat conversation state. It lives in the session
// store under the chat key; TTL expiry is equivalent to an implicit cancel.
type ReturnSession struct {
	State                 FlowState `json:"state"`
	ReceiptId             int       `json:"receipt_id"`
	ReceiptNumber         string    `json:"receipt_number"`
	SelectedReasonIds     []int     `json:"selected_reason_ids"`
	ResponsibleRole       string    `json:"responsible_role"`
	ResponsibleEmployeeId *int      `json:"responsible_employee_id"`
}

func (s *ReturnSession) hasReason(reasonId int) bool {
	for _, id := range s.SelectedReasonIds {
		if id == reasonId {
			return true
		}
	}
	return false
}

// toggleReason adds the reason to the selection, or removes it when already
// selected.
func (s *ReturnSession) toggleReason(reasonId int) {
	for i, id := range s.SelectedReasonIds {
		if id == reasonId {
			s.SelectedReasonIds = append(s.SelectedReasonIds[:i], s.SelectedReasonIds[i+1:]...)
			return
		}
	}
	s.SelectedReasonIds = append(s.SelectedReasonIds, reasonId)
}

// Backend is the storage collaborator of the return flow. The default
// implementation calls the models package; tests inject fakes.
type Backend interface {
	GetOrCreateReceipt(ctx context.Context, receiptNumber string) (*models.Receipt, error)
	GetReturnReasons(ctx context.Context) ([]*models.ReturnReason, error)
	GetEmployee(ctx context.Context, id int) (*models.Employee, error)
	CreateReturn(ctx context.Context, input *models.NewReturn) (*models.Return, error)
}

type dbBackend struct{}

func (dbBackend) GetOrCreateReceipt(ctx context.Context, receiptNumber string) (*models.Receipt, error) {
	return models.GetOrCreateReceipt(ctx, &models.NewReceipt{ReceiptNumber: receiptNumber})
}

func (dbBackend) GetReturnReasons(ctx context.Context) ([]*models.ReturnReason, error) {
	return models.GetReturnReasons(ctx)
}

func (dbBackend) GetEmployee(ctx context.Context, id int) (*models.Employee, error) {
	return models.GetEmployee(ctx, id)
}

func (dbBackend) CreateReturn(ctx context.Context, input *models.NewReturn) (*models.Return, error) {
	return models.CreateReturn(ctx, input)
}

// ReturnFlow drives the return conversation: collect one or more reasons,
// conditionally ask for a responsible employee when a reason requires
// attribution, then commit one return with all reasons atomically.
type ReturnFlow struct {
	Sessions session.Store
	Backend  Backend
	Logger   *logrus.Logger
	TTL      time.Duration
}

func NewReturnFlow(sessions session.Store, logger *logrus.Logger) *ReturnFlow {
	return &ReturnFlow{
		Sessions: sessions,
		Backend:  dbBackend{},
		Logger:   logger,
		TTL:      sessionTTLFromEnv(),
	}
}

func sessionTTLFromEnv() time.Duration {
	v := strings.TrimSpace(os.Getenv("RETURN_SESSION_TTL_HOURS"))
	if v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Hour
		}
	}
	return 24 * time.Hour
}

func (f *ReturnFlow) load(ctx context.Context, key string, want ...FlowState) (*ReturnSession, error) {
	var sess ReturnSession
	ok, err := f.Sessions.Get(ctx, key, &sess)
	if err != nil {
		return nil, utils.StorageError(err)
	}
	if !ok {
		return nil, utils.ValidationError("no active return flow")
	}
	for _, w := range want {
		if sess.State == w {
			return &sess, nil
		}
	}
	return nil, utils.ValidationError("action not available in state %s", sess.State)
}

func (f *ReturnFlow) save(ctx context.Context, key string, sess *ReturnSession) error {
	if err := f.Sessions.Put(ctx, key, sess, f.TTL); err != nil {
		return utils.StorageError(err)
	}
	return nil
}

// Start opens a fresh conversation, discarding any previous one under the
// same key.
func (f *ReturnFlow) Start(ctx context.Context, key string) (*ReturnSession, error) {
	sess := &ReturnSession{State: StateAwaitingReceipt}
	if err := f.save(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetReceipt resolves (or creates) the receipt and moves to action choice.
func (f *ReturnFlow) SetReceipt(ctx context.Context, key string, receiptNumber string) (*ReturnSession, error) {
	sess, err := f.load(ctx, key, StateAwaitingReceipt)
	if err != nil {
		return nil, err
	}
	receipt, err := f.Backend.GetOrCreateReceipt(ctx, receiptNumber)
	if err != nil {
		return nil, err
	}
	sess.ReceiptId = receipt.ID
	sess.ReceiptNumber = receipt.ReceiptNumber
	sess.State = StateActionChosen
	if err := f.save(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ChooseReturn enters reason selection with an empty set.
func (f *ReturnFlow) ChooseReturn(ctx context.Context, key string) (*ReturnSession, error) {
	sess, err := f.load(ctx, key, StateActionChosen)
	if err != nil {
		return nil, err
	}
	sess.State = StateSelectingReasons
	sess.SelectedReasonIds = nil
	if err := f.save(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ToggleReason flips one reason in or out of the selection.
func (f *ReturnFlow) ToggleReason(ctx context.Context, key string, reasonId int) (*ReturnSession, error) {
	sess, err := f.load(ctx, key, StateSelectingReasons)
	if err != nil {
		return nil, err
	}
	sess.toggleReason(reasonId)
	if err := f.save(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// FinishReasons leaves reason selection. When any selected reason requires
// attribution the flow detours through responsible-party selection,
// otherwise it goes straight to confirmation.
func (f *ReturnFlow) FinishReasons(ctx context.Context, key string) (*ReturnSession, error) {
	sess, err := f.load(ctx, key, StateSelectingReasons)
	if err != nil {
		return nil, err
	}
	if len(sess.SelectedReasonIds) == 0 {
		return nil, utils.ValidationError("select at least one reason")
	}

	needsAttribution, err := f.selectionNeedsAttribution(ctx, sess)
	if err != nil {
		return nil, err
	}
	if needsAttribution {
		sess.State = StateSelectingResponsibleRole
	} else {
		sess.State = StateConfirmingReturn
	}
	if err := f.save(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (f *ReturnFlow) selectionNeedsAttribution(ctx context.Context, sess *ReturnSession) (bool, error) {
	reasons, err := f.Backend.GetReturnReasons(ctx)
	if err != nil {
		return false, err
	}
	for _, reason := range reasons {
		if reason.Code == models.AttributionReasonCode && sess.hasReason(reason.ID) {
			return true, nil
		}
	}
	return false, nil
}

// ChooseResponsibleRole picks the category of responsible party.
func (f *ReturnFlow) ChooseResponsibleRole(ctx context.Context, key string, role string) (*ReturnSession, error) {
	sess, err := f.load(ctx, key, StateSelectingResponsibleRole)
	if err != nil {
		return nil, err
	}
	if role != models.RolePolisher && role != models.RoleAssembler {
		return nil, utils.ValidationError("unknown responsible role %s", role)
	}
	sess.ResponsibleRole = role
	sess.State = StateSelectingResponsibleParty
	if err := f.save(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// ChooseResponsibleParty picks the specific employee and moves to
// confirmation. The employee must be active and hold the chosen role.
func (f *ReturnFlow) ChooseResponsibleParty(ctx context.Context, key string, employeeId int) (*ReturnSession, error) {
	sess, err := f.load(ctx, key, StateSelectingResponsibleParty)
	if err != nil {
		return nil, err
	}
	employee, err := f.Backend.GetEmployee(ctx, employeeId)
	if err != nil {
		return nil, err
	}
	if !employee.IsActive {
		return nil, utils.ValidationError("employee %d is not active", employeeId)
	}
	if employee.Role != sess.ResponsibleRole {
		return nil, utils.ValidationError("employee %d is not a %s", employeeId, sess.ResponsibleRole)
	}
	sess.ResponsibleEmployeeId = &employee.ID
	sess.State = StateConfirmingReturn
	if err := f.save(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Confirm commits the return. The responsible employee is attached only to
// the selection whose reason code requires attribution; every other
// selection carries none. On a failed commit the session stays in
// confirming_return so the user can retry without re-entering selections.
func (f *ReturnFlow) Confirm(ctx context.Context, key string, comment string) (*ReturnSession, *models.Return, error) {
	sess, err := f.load(ctx, key, StateConfirmingReturn)
	if err != nil {
		return nil, nil, err
	}

	reasons, err := f.Backend.GetReturnReasons(ctx)
	if err != nil {
		return nil, nil, err
	}
	codeById := make(map[int]string, len(reasons))
	for _, reason := range reasons {
		codeById[reason.ID] = reason.Code
	}

	input := &models.NewReturn{
		ReceiptId: sess.ReceiptId,
		Comment:   comment,
	}
	for _, reasonId := range sess.SelectedReasonIds {
		link := models.NewReturnReasonLink{ReasonId: reasonId}
		if codeById[reasonId] == models.AttributionReasonCode {
			link.GuiltyEmployeeId = sess.ResponsibleEmployeeId
		}
		input.Reasons = append(input.Reasons, link)
	}

	returnRecord, err := f.Backend.CreateReturn(ctx, input)
	if err != nil {
		// Session untouched: the user retries from confirming_return.
		return nil, nil, err
	}

	sess.State = StateCompleted
	if err := f.save(ctx, key, sess); err != nil {
		// The return is already committed. Leaving the session in
		// confirming_return would let a retry commit a duplicate, so the
		// stale session is dropped and the commit reported as what it is.
		if delErr := f.Sessions.Delete(ctx, key); delErr != nil {
			f.Logger.WithFields(logrus.Fields{
				"module":     "ReturnFlow",
				"receipt_id": sess.ReceiptId,
				"return_id":  returnRecord.ID,
			}).Warn("session cleanup after commit failed: " + delErr.Error())
		}
	}

	f.Logger.WithFields(logrus.Fields{
		"module":     "ReturnFlow",
		"receipt_id": sess.ReceiptId,
		"return_id":  returnRecord.ID,
		"reasons":    sess.SelectedReasonIds,
	}).Info("return created")
	return sess, returnRecord, nil
}

// StartAnother begins a new return on the same receipt: selections reset,
// receipt identity retained.
func (f *ReturnFlow) StartAnother(ctx context.Context, key string) (*ReturnSession, error) {
	sess, err := f.load(ctx, key, StateCompleted)
	if err != nil {
		return nil, err
	}
	sess.SelectedReasonIds = nil
	sess.ResponsibleRole = ""
	sess.ResponsibleEmployeeId = nil
	sess.State = StateSelectingReasons
	if err := f.save(ctx, key, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Cancel discards the conversation from any state. No storage writes happen.
func (f *ReturnFlow) Cancel(ctx context.Context, key string) error {
	if err := f.Sessions.Delete(ctx, key); err != nil {
		return utils.StorageError(err)
	}
	return nil
}

// Get returns the current session for rendering, without mutating it.
func (f *ReturnFlow) Get(ctx context.Context, key string) (*ReturnSession, error) {
	var sess ReturnSession
	ok, err := f.Sessions.Get(ctx, key, &sess)
	if err != nil {
		return nil, utils.StorageError(err)
	}
	if !ok {
		return nil, utils.NotFoundError("no active return flow for %s", key)
	}
	return &sess, nil
}
