package engine

import (
	"context"
	"time"
)

// #region statuses

// TurnStatus is the lifecycle state of one deliberation.
type TurnStatus string

const (
	TurnPending   TurnStatus = "pending"
	TurnSucceeded TurnStatus = "succeeded"
	TurnDegraded  TurnStatus = "degraded"
	TurnFailed    TurnStatus = "failed"
	TurnCancelled TurnStatus = "cancelled"
)

// Terminal reports whether the status admits no further rounds.
func (s TurnStatus) Terminal() bool {
	return s == TurnSucceeded || s == TurnDegraded || s == TurnFailed || s == TurnCancelled
}

// #endregion statuses

// #region verdict

// Verdict is the critic's overall judgment of a draft.
type Verdict string

const (
	VerdictAccept Verdict = "accept"
	VerdictRevise Verdict = "revise"
	VerdictReject Verdict = "reject"
)

// #endregion verdict

// #region critique

// Axis identifies one independent critique dimension.
type Axis string

const (
	AxisConsistency Axis = "consistency"
	AxisFactuality  Axis = "factuality"
	AxisGrounding   Axis = "grounding"
)

// Severity ranks a finding. Mirrors the severities the course platform's
// reviewers already use.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Finding is one concrete issue the critic identified.
type Finding struct {
	Axis        Axis     `json:"axis"`
	Severity    Severity `json:"severity"`
	Description string   `json:"description"`
}

// Critique scores a draft along independent axes. All scores lie in [0,1];
// higher is better. Grounding is the inverse of hallucination risk.
type Critique struct {
	Consistency float64   `json:"consistency"`
	Factuality  float64   `json:"factuality"`
	Grounding   float64   `json:"grounding"`
	Findings    []Finding `json:"findings"`
	Verdict     Verdict   `json:"verdict"`
	Note        string    `json:"note,omitempty"` // synthetic low-confidence note when critique degraded
}

// Aggregate is the mean of the three axis scores. The moderator uses it for
// convergence and stagnation detection.
func (c Critique) Aggregate() float64 {
	return (c.Consistency + c.Factuality + c.Grounding) / 3.0
}

// #endregion critique

// #region decision

// DecisionAction is what the moderator tells the engine to do next.
type DecisionAction string

const (
	ActionContinue DecisionAction = "continue"
	ActionFinalize DecisionAction = "finalize"
	ActionAbort    DecisionAction = "abort"
)

// DeliberationState is the moderator's state machine position.
type DeliberationState string

const (
	StateDeliberating   DeliberationState = "deliberating"
	StateConverged      DeliberationState = "converged"
	StateForcedFinalize DeliberationState = "forced_finalize"
	StateAborted        DeliberationState = "aborted"
)

// Decision is one moderator ruling, with rationale for the audit log.
type Decision struct {
	Action      DecisionAction    `json:"action"`
	State       DeliberationState `json:"state"`
	Rationale   string            `json:"rationale"`
	Convergence float64           `json:"convergence"` // aggregate critique score at decision time
}

// #endregion decision

// #region data-model

// RetrievedPassage is one supporting passage, fixed for the turn after the
// retriever's single pass.
type RetrievedPassage struct {
	Source  string  `json:"source"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
	Method  string  `json:"method"` // "direct" or "reframed"
}

// Draft is a candidate answer. Prompt records the full context it was
// conditioned on.
type Draft struct {
	Round   int    `json:"round"`
	Content string `json:"content"`
	Prompt  string `json:"prompt"`
}

// Round is one draft → critique → decide cycle. Appended only by the engine;
// never mutated afterwards.
type Round struct {
	Index    int      `json:"index"`
	Draft    Draft    `json:"draft"`
	Critique Critique `json:"critique"`
	Decision Decision `json:"decision"`
}

// FinalResponse is the reporter's synthesized answer.
type FinalResponse struct {
	Answer     string  `json:"answer"`
	Round      int     `json:"round"`
	Confidence float64 `json:"confidence"`
	Degraded   bool    `json:"degraded"`
}

// StageTiming records wall-clock time spent in one stage.
type StageTiming struct {
	Stage   string        `json:"stage"`
	Elapsed time.Duration `json:"elapsed"`
}

// Turn is one end-to-end deliberation for a single query. The engine is the
// only writer; once Status is terminal the record is frozen.
type Turn struct {
	ID              string             `json:"id"`
	Query           string             `json:"query"`
	ReframedQueries []string           `json:"reframed_queries,omitempty"`
	Passages        []RetrievedPassage `json:"passages"`
	Ungrounded      bool               `json:"ungrounded"`
	Rounds          []Round            `json:"rounds"`
	Final           *FinalResponse     `json:"final,omitempty"`
	Abort           *Decision          `json:"abort,omitempty"` // set when a stage failure ended the turn
	Status          TurnStatus         `json:"status"`
	Timings         []StageTiming      `json:"timings"`
	StartedAt       time.Time          `json:"started_at"`
	Elapsed         time.Duration      `json:"elapsed"`
}

// StyleHint is the tutor's presentation adjustment for the next turn.
type StyleHint string

const (
	StyleDefault  StyleHint = "default"
	StyleSimplify StyleHint = "simplify"
	StyleDeepen   StyleHint = "deepen"
	StyleCooldown StyleHint = "cooldown"
)

// TutorAction carries the tutor's cross-turn guidance.
type TutorAction struct {
	Style   StyleHint `json:"style"`
	Message string    `json:"message,omitempty"`
}

// Session accumulates turn history for one learner. Owned exclusively by the
// engine goroutine handling the session.
type Session struct {
	ID          string    `json:"id"`
	CourseScope string    `json:"course_scope"`
	Turns       []*Turn   `json:"turns"`
	Style       StyleHint `json:"style"`
	CreatedAt   time.Time `json:"created_at"`
	LastActive  time.Time `json:"last_active"`

	active bool // one in-flight turn at a time
}

// #endregion data-model

// #region agent-interfaces

// RetrievalResult is the retriever's output: the fixed passage set for the
// turn plus the speculative reframings that produced it. Ungrounded is the
// explicit empty-result signal; it is never inferred from len(Passages).
type RetrievalResult struct {
	Passages   []RetrievedPassage
	Reframes   []string
	Ungrounded bool
}

// Retriever produces ranked supporting passages for a query.
type Retriever interface {
	Retrieve(ctx context.Context, query, courseScope string, k int) (RetrievalResult, error)
}

// Drafter produces a candidate answer. prior is nil on round 1; on later
// rounds the draft must address every revise/reject finding in prior.
type Drafter interface {
	Draft(ctx context.Context, query string, passages []RetrievedPassage, ungrounded bool, prior *Critique, round int, style StyleHint) (Draft, error)
}

// Critic scores a draft along independent axes. prior carries the previous
// round's critique so unaddressed findings can be flagged. An inference
// failure must degrade to a revise verdict, not an error.
type Critic interface {
	Critique(ctx context.Context, draft Draft, passages []RetrievedPassage, prior *Critique) Critique
}

// Moderator owns the convergence policy. Deterministic over the round
// history and elapsed turn time.
type Moderator interface {
	Decide(rounds []Round, elapsed time.Duration) Decision
	AbortDecision(stage string, cause error) Decision
}

// Reporter synthesizes the final answer from the deliberation trace.
type Reporter interface {
	Synthesize(state DeliberationState, rounds []Round, style StyleHint) FinalResponse
}

// Tutor analyzes the session's turn history and adapts presentation style.
// It runs outside the within-turn debate loop.
type Tutor interface {
	FollowUp(history []*Turn, newUtterance string) TutorAction
}

// AuditSink persists a completed turn for audit and replay. Implementations
// must tolerate concurrent calls from different sessions.
type AuditSink interface {
	SaveTurn(ctx context.Context, sessionID, courseScope string, turn *Turn) error
}

// #endregion agent-interfaces
