package service

import (
	"github.com/reelhub/review-api/internal/models"
	appErrors "github.com/reelhub/review-api/pkg/errors"
)

// Operation names an authorizable action.
type Operation string

const (
	OpSubmissionCreate   Operation = "submission.create"
	OpSubmissionView     Operation = "submission.view"
	OpSubmissionBump     Operation = "submission.bump"
	OpSubmissionDelete   Operation = "submission.delete"
	OpSubmissionReview   Operation = "submission.review"
	OpFeedbackCreate     Operation = "feedback.create"
	OpFeedbackView       Operation = "feedback.view"
	OpFeedbackModify     Operation = "feedback.modify"
	OpAnalysisTrigger    Operation = "analysis.trigger"
	OpAnalysisView       Operation = "analysis.view"
	OpRateManage         Operation = "rate.manage"
	OpSettlementGenerate Operation = "settlement.generate"
	OpSettlementManage   Operation = "settlement.manage"
	OpSettlementComplete Operation = "settlement.complete"
	OpSettlementView     Operation = "settlement.view"
)

// Scope limits which resources a role may act on.
type Scope int

const (
	// ScopeNone denies the operation.
	ScopeNone Scope = iota
	// ScopeOwn allows the operation only on resources owned by the actor.
	ScopeOwn
	// ScopeAny allows the operation on every resource.
	ScopeAny
)

type grants map[models.UserRole]Scope

var (
	staffAny     = grants{models.RoleSuperAdmin: ScopeAny, models.RoleAdmin: ScopeAny}
	staffOrOwner = grants{models.RoleSuperAdmin: ScopeAny, models.RoleAdmin: ScopeAny, models.RoleWorker: ScopeOwn}
	workerOwn    = grants{models.RoleWorker: ScopeOwn}
)

// policy is the single authorization table. Ownership means the worker of a
// submission or settlement, or the author of a feedback entry.
var policy = map[Operation]grants{
	OpSubmissionCreate:   workerOwn,
	OpSubmissionView:     staffOrOwner,
	OpSubmissionBump:     workerOwn,
	OpSubmissionDelete:   staffOrOwner,
	OpSubmissionReview:   staffAny,
	OpFeedbackCreate:     staffAny,
	OpFeedbackView:       staffOrOwner,
	OpFeedbackModify:     {models.RoleSuperAdmin: ScopeAny, models.RoleAdmin: ScopeOwn},
	OpAnalysisTrigger:    staffOrOwner,
	OpAnalysisView:       staffOrOwner,
	OpRateManage:         staffAny,
	OpSettlementGenerate: staffAny,
	OpSettlementManage:   staffAny,
	OpSettlementComplete: {models.RoleSuperAdmin: ScopeAny},
	OpSettlementView:     staffOrOwner,
}

// ScopeFor returns the scope the actor holds for op.
func ScopeFor(actor *models.JWTClaims, op Operation) Scope {
	if actor == nil {
		return ScopeNone
	}
	return policy[op][actor.Role]
}

// Authorize checks op against the policy table once. ownerID is the owner of
// the target resource; it is ignored for ScopeAny grants.
func Authorize(actor *models.JWTClaims, op Operation, ownerID string) error {
	if actor == nil || actor.UserID == "" {
		return appErrors.ErrUnauthorized
	}
	switch ScopeFor(actor, op) {
	case ScopeAny:
		return nil
	case ScopeOwn:
		if ownerID != "" && ownerID == actor.UserID {
			return nil
		}
	}
	return appErrors.ErrForbidden
}

// AuthorizeAny checks that the actor holds op at all, for actions without a
// single target such as listings. It returns the scope granted.
func AuthorizeAny(actor *models.JWTClaims, op Operation) (Scope, error) {
	if actor == nil || actor.UserID == "" {
		return ScopeNone, appErrors.ErrUnauthorized
	}
	scope := ScopeFor(actor, op)
	if scope == ScopeNone {
		return ScopeNone, appErrors.ErrForbidden
	}
	return scope, nil
}
