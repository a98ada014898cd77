package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/XiandaDu/WatAIOliver/internal/config"
)

// #region engine-struct

// Engine drives each turn through retrieve → draft → critique → moderate →
// (loop | report). It owns all session state; agents are pure capabilities
// injected at construction.
type Engine struct {
	cfg       config.DeliberationConfig
	retriever Retriever
	drafter   Drafter
	critic    Critic
	moderator Moderator
	reporter  Reporter
	tutor     Tutor
	audit     AuditSink // may be nil

	mu       sync.Mutex
	sessions map[string]*Session

	log *logrus.Entry
}

// Deps bundles the injected agent set and collaborators.
type Deps struct {
	Retriever Retriever
	Drafter   Drafter
	Critic    Critic
	Moderator Moderator
	Reporter  Reporter
	Tutor     Tutor
	Audit     AuditSink
}

// New creates an engine with the given agents. Audit may be nil for
// in-memory-only operation.
func New(cfg config.DeliberationConfig, deps Deps, log *logrus.Entry) *Engine {
	return &Engine{
		cfg:       cfg,
		retriever: deps.Retriever,
		drafter:   deps.Drafter,
		critic:    deps.Critic,
		moderator: deps.Moderator,
		reporter:  deps.Reporter,
		tutor:     deps.Tutor,
		audit:     deps.Audit,
		sessions:  make(map[string]*Session),
		log:       log,
	}
}

// #endregion engine-struct

// #region submit

// SubmitQuery validates the request, claims the session, and starts the turn
// pipeline. It returns the session id (generated when blank) and an ordered
// progress event channel, closed after the single terminal event.
//
// A busy session is rejected rather than queued; the caller may retry once
// its previous stream terminates.
func (e *Engine) SubmitQuery(ctx context.Context, sessionID, courseScope, text string) (string, <-chan ProgressEvent, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil, ErrEmptyQuery
	}
	if strings.TrimSpace(courseScope) == "" {
		return "", nil, ErrEmptyScope
	}
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	e.mu.Lock()
	sess := e.getOrCreateSession(sessionID, courseScope)
	if sess.active {
		e.mu.Unlock()
		return "", nil, ErrSessionBusy
	}
	sess.active = true

	// Tutor runs between turns, on accumulated history.
	if len(sess.Turns) > 0 && e.tutor != nil {
		action := e.tutor.FollowUp(sess.Turns, text)
		sess.Style = action.Style
	}
	style := sess.Style

	turn := &Turn{
		ID:        uuid.New().String(),
		Query:     text,
		Status:    TurnPending,
		StartedAt: time.Now().UTC(),
	}
	e.mu.Unlock()

	// Buffer covers the worst-case event count for the round budget so a
	// stalled consumer cannot wedge the turn goroutine.
	em := newEmitter(4*e.cfg.MaxRounds + 8)
	go e.runTurn(ctx, sess, turn, style, em)
	return sessionID, em.ch, nil
}

// #endregion submit

// #region run-turn

func (e *Engine) runTurn(ctx context.Context, sess *Session, turn *Turn, style StyleHint, em *emitter) {
	log := e.log.WithFields(logrus.Fields{"session": sess.ID, "turn": turn.ID})
	start := time.Now()

	// Watchdog: the caller always gets a terminal event, even on panic.
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("turn panicked: %v", r)
			e.finishTurn(sess, turn, TurnFailed, start)
			em.emit(ProgressEvent{
				Status: EventFailed,
				Stage:  "engine",
				Err:    &EventError{Message: fmt.Sprintf("internal error: %v", r), Stage: "engine"},
			})
			return
		}
	}()

	// --- Retrieve ---
	if e.cancelled(ctx, sess, turn, em, StageRetrieve, start) {
		return
	}
	em.progress(StageRetrieve, "searching course material", 0)
	stageStart := time.Now()
	res, err := e.retriever.Retrieve(ctx, turn.Query, sess.CourseScope, e.cfg.RetrievalK)
	turn.Timings = append(turn.Timings, StageTiming{Stage: StageRetrieve, Elapsed: time.Since(stageStart)})
	if err != nil {
		if ctx.Err() != nil {
			e.emitCancelled(sess, turn, em, StageRetrieve, start)
			return
		}
		log.WithError(err).Error("retrieval aborted")
		e.finishTurn(sess, turn, TurnFailed, start)
		em.emit(ProgressEvent{
			Status: EventFailed,
			Stage:  StageRetrieve,
			Err:    &EventError{Message: (&AbortedError{Stage: StageRetrieve, Err: err}).Error(), Stage: StageRetrieve},
		})
		e.persist(sess, turn)
		return
	}
	turn.Passages = res.Passages
	turn.ReframedQueries = res.Reframes
	turn.Ungrounded = res.Ungrounded
	em.progress(StageRetrieve, fmt.Sprintf("retrieved %d passages", len(res.Passages)), 0)

	// --- Debate loop ---
	var prior *Critique
	for round := 1; round <= e.cfg.MaxRounds; round++ {
		if e.cancelled(ctx, sess, turn, em, StageDraft, start) {
			return
		}

		em.progress(StageDraft, fmt.Sprintf("drafting answer (round %d)", round), round)
		stageStart = time.Now()
		draft, err := e.drafter.Draft(ctx, turn.Query, turn.Passages, turn.Ungrounded, prior, round, style)
		turn.Timings = append(turn.Timings, StageTiming{Stage: StageDraft, Elapsed: time.Since(stageStart)})
		if err != nil {
			if ctx.Err() != nil {
				e.emitCancelled(sess, turn, em, StageDraft, start)
				return
			}
			e.abort(sess, turn, style, em, StageDraft, err, start, log)
			return
		}
		em.progress(StageDraft, "draft produced", round)

		stageStart = time.Now()
		crit := e.critic.Critique(ctx, draft, turn.Passages, prior)
		turn.Timings = append(turn.Timings, StageTiming{Stage: StageCritique, Elapsed: time.Since(stageStart)})
		em.progress(StageCritique, fmt.Sprintf("verdict: %s", crit.Verdict), round)

		pending := Round{Index: round, Draft: draft, Critique: crit}
		decision := e.moderator.Decide(append(append([]Round(nil), turn.Rounds...), pending), time.Since(start))
		pending.Decision = decision
		turn.Rounds = append(turn.Rounds, pending)
		em.progress(StageModerate, decision.Rationale, round)

		if decision.Action == ActionContinue {
			prior = &crit
			continue
		}

		// --- Report ---
		e.report(sess, turn, decision.State, style, em, start)
		e.persist(sess, turn)
		return
	}

	// Unreachable when the moderator honors the round budget; kept as a
	// hard stop so a faulty moderator cannot loop forever.
	e.report(sess, turn, StateForcedFinalize, style, em, start)
	e.persist(sess, turn)
}

// #endregion run-turn

// #region report

func (e *Engine) report(sess *Session, turn *Turn, state DeliberationState, style StyleHint, em *emitter, start time.Time) {
	em.progress(StageReport, "synthesizing final answer", len(turn.Rounds))
	stageStart := time.Now()
	final := e.reporter.Synthesize(state, turn.Rounds, style)
	turn.Timings = append(turn.Timings, StageTiming{Stage: StageReport, Elapsed: time.Since(stageStart)})
	turn.Final = &final

	status := TurnSucceeded
	eventStatus := EventComplete
	if state != StateConverged {
		status = TurnDegraded
		eventStatus = EventDegraded
	}
	e.finishTurn(sess, turn, status, start)
	em.emit(ProgressEvent{
		Status:  eventStatus,
		Stage:   StageReport,
		Message: "deliberation finished",
		Round:   len(turn.Rounds),
		Final:   &final,
		Timings: turn.Timings,
	})
}

// #endregion report

// #region abort

// abort handles a required stage exhausting its retries. With at least one
// draft on record the turn degrades to a best-effort answer; otherwise it
// fails outright.
func (e *Engine) abort(sess *Session, turn *Turn, style StyleHint, em *emitter, stage string, cause error, start time.Time, log *logrus.Entry) {
	log.WithError(cause).WithField("stage", stage).Error("stage aborted")

	// The abort is recorded on the turn, never on a round: completed rounds
	// hold the decisions the moderator actually made, and replay depends on
	// that log staying append-only.
	decision := e.moderator.AbortDecision(stage, cause)
	turn.Abort = &decision
	if len(turn.Rounds) > 0 {
		final := e.reporter.Synthesize(StateAborted, turn.Rounds, style)
		turn.Final = &final
		e.finishTurn(sess, turn, TurnDegraded, start)
		em.emit(ProgressEvent{
			Status:  EventDegraded,
			Stage:   stage,
			Message: decision.Rationale,
			Final:   &final,
			Timings: turn.Timings,
			Err:     &EventError{Message: cause.Error(), Stage: stage},
		})
	} else {
		e.finishTurn(sess, turn, TurnFailed, start)
		em.emit(ProgressEvent{
			Status: EventFailed,
			Stage:  stage,
			Err:    &EventError{Message: (&AbortedError{Stage: stage, Err: cause}).Error(), Stage: stage},
		})
	}
	e.persist(sess, turn)
}

// #endregion abort

// #region cancellation

// cancelled checks for caller cancellation at a stage boundary. Agent calls
// are never interrupted mid-flight; the turn stops at the next boundary.
func (e *Engine) cancelled(ctx context.Context, sess *Session, turn *Turn, em *emitter, stage string, start time.Time) bool {
	select {
	case <-ctx.Done():
		e.emitCancelled(sess, turn, em, stage, start)
		return true
	default:
		return false
	}
}

func (e *Engine) emitCancelled(sess *Session, turn *Turn, em *emitter, stage string, start time.Time) {
	e.finishTurn(sess, turn, TurnCancelled, start)
	em.emit(ProgressEvent{Status: EventCancelled, Stage: stage, Message: "turn cancelled by caller"})
	e.persist(sess, turn)
}

// #endregion cancellation

// #region finish

func (e *Engine) finishTurn(sess *Session, turn *Turn, status TurnStatus, start time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	turn.Status = status
	turn.Elapsed = time.Since(start)
	sess.Turns = append(sess.Turns, turn)
	sess.LastActive = time.Now().UTC()
	sess.active = false
}

// persist writes the terminal turn to the audit sink, best effort.
func (e *Engine) persist(sess *Session, turn *Turn) {
	if e.audit == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.audit.SaveTurn(ctx, sess.ID, sess.CourseScope, turn); err != nil {
		e.log.WithError(err).WithField("turn", turn.ID).Warn("audit write failed")
	}
}

// #endregion finish
