package models

// Reminder kinds. Names follow the notification_type values the chat
// front-end renders.
const (
	ReminderKindDeadlineToday = "deadline_today"
	ReminderKindDeadline1h    = "deadline_1h"
)

// History event types.
const (
	EventReceiptCreated  = "receipt_created"
	EventDeadlineChanged = "deadline_changed"
	EventReturnCreated   = "return_created"
	EventOtkPassed       = "otk_passed"
	EventSentToPolishing = "sent_to_polishing"
	EventOperationAdded  = "operation_added"
)

// Return reason whose selection requires attributing a responsible employee.
const AttributionReasonCode = "polishing"

// Workflow stages a return reason can affect.
const (
	AffectsAssembly  = "assembly"
	AffectsMechanism = "mechanism"
	AffectsPolishing = "polishing"
)

// Employee roles.
const (
	RoleMaster    = "master"
	RolePolisher  = "polisher"
	RoleAssembler = "assembler"
)
