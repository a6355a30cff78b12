package schedule

import "schedbot/internal/job"

// OutcomeKind selects the reply sent back to the issuer.
type OutcomeKind string

const (
	OutcomeCreated          OutcomeKind = "SUCCESS_SCHEDULE"
	OutcomeMissingRecipient OutcomeKind = "ERROR_MISSING_RECIPIENT"
	OutcomeMissingDateTime  OutcomeKind = "ERROR_MISSING_DATETIME"
	OutcomeMissingMessage   OutcomeKind = "ERROR_MISSING_MESSAGE"
	OutcomeInvalidFormat    OutcomeKind = "ERROR_INVALID_FORMAT"
	OutcomeInvalidPhone     OutcomeKind = "ERROR_INVALID_PHONE"
	OutcomeContactNotFound  OutcomeKind = "ERROR_CONTACT_NOT_FOUND"
	OutcomeInvalidDateTime  OutcomeKind = "ERROR_INVALID_DATETIME"
	OutcomeInvalidHour      OutcomeKind = "ERROR_INVALID_HOUR"
	OutcomePastDateTime     OutcomeKind = "ERROR_PAST_DATETIME"
	OutcomeInvalidMessage   OutcomeKind = "ERROR_INVALID_MESSAGE"
	OutcomeLimitReached     OutcomeKind = "ERROR_LIMIT_REACHED"
	OutcomeInternal         OutcomeKind = "ERROR_INTERNAL"

	// Natural-language conversation outcomes.
	OutcomeNeedTime      OutcomeKind = "NEED_TIME"
	OutcomeNeedDate      OutcomeKind = "NEED_DATE"
	OutcomeNeedPhone     OutcomeKind = "NEED_PHONE"
	OutcomeNotUnderstood OutcomeKind = "NOT_UNDERSTOOD"
)

// Stage is the handler step an outcome was produced at.
type Stage string

const (
	StageParse     Stage = "ParseFailed"
	StageRecipient Stage = "RecipientFailed"
	StageDateTime  Stage = "DateTimeFailed"
	StageContent   Stage = "ContentInvalid"
	StageLimit     Stage = "LimitReached"
	StageCreated   Stage = "Created"
	StagePending   Stage = "AwaitingFollowUp"
	StageInternal  Stage = "Internal"
)

// Outcome is the single result of handling one scheduling request.
type Outcome struct {
	Kind  OutcomeKind
	Stage Stage
	Job   *job.Job

	// Input echoes the offending token for recipient errors.
	Input string
	// Current and Max are set for OutcomeLimitReached.
	Current int
	Max     int
	// FollowUp marks a job created by completing a conversation.
	FollowUp bool

	Err error
}

// OK reports whether a job was created.
func (o Outcome) OK() bool { return o.Kind == OutcomeCreated }
