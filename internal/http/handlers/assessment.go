package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/adaptest-backend/internal/assessment/engine"
	"github.com/yungbote/adaptest-backend/internal/assessment/scoring"
	"github.com/yungbote/adaptest-backend/internal/assessment/store"
	"github.com/yungbote/adaptest-backend/internal/domain"
	"github.com/yungbote/adaptest-backend/internal/grades"
	"github.com/yungbote/adaptest-backend/internal/http/response"
	"github.com/yungbote/adaptest-backend/internal/pkg/errs"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

const gradeSubmitTimeout = 2 * time.Minute

// GradeSubmitter pushes a score snapshot to the launching platform.
type GradeSubmitter interface {
	Submit(ctx context.Context, sess *domain.Session, sum domain.Summary, progress grades.Progress) (*domain.GradeSubmission, error)
}

type AssessmentHandler struct {
	log       *logger.Logger
	sessions  *store.Store
	engine    *engine.Engine
	evaluator scoring.Evaluator
	reporter  GradeSubmitter
}

func NewAssessmentHandler(baseLog *logger.Logger, sessions *store.Store, eng *engine.Engine, evaluator scoring.Evaluator, reporter GradeSubmitter) *AssessmentHandler {
	return &AssessmentHandler{
		log:       baseLog.With("handler", "AssessmentHandler"),
		sessions:  sessions,
		engine:    eng,
		evaluator: evaluator,
		reporter:  reporter,
	}
}

type answerRequest struct {
	SessionID     string `json:"session_id" binding:"required"`
	StudentAnswer string `json:"student_answer" binding:"required"`
	Explanation   string `json:"explanation"`
}

// Start opens a standalone session with no launching platform behind it. LTI
// launches never come through here; their sessions are opened by the launch
// handler.
func (h *AssessmentHandler) Start(c *gin.Context) {
	ctx := c.Request.Context()
	subject := domain.SubjectRef{
		SubjectID:      "standalone:" + uuid.NewString(),
		ResourceLinkID: "standalone",
	}
	sess, _, err := h.sessions.StartOrResume(ctx, subject, "", nil)
	if err != nil {
		response.RespondError(c, http.StatusInternalServerError, "session_failed", err)
		return
	}

	var question *domain.Question
	if err := h.sessions.WithSession(ctx, sess.ID, func(s *domain.Session) error {
		q, qErr := h.engine.NextQuestion(s)
		if qErr != nil {
			return qErr
		}
		question = q
		return nil
	}); err != nil {
		h.log.Error("question selection failed", "session_id", sess.ID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "assessment_unavailable", err)
		return
	}

	response.RespondOK(c, gin.H{
		"session_id":    sess.ID.String(),
		"question":      question,
		"max_questions": sess.MaxQuestions,
	})
}

// Answer records one response: evaluate, adapt levels, then either hand back
// the next question or close the session with a summary. Grade delivery runs
// in the background and never blocks or fails the learner's request.
func (h *AssessmentHandler) Answer(c *gin.Context) {
	ctx := c.Request.Context()
	var req answerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	id, err := uuid.Parse(req.SessionID)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}

	var (
		evaluation domain.Evaluation
		nextQ      *domain.Question
		finished   bool
		summary    domain.Summary
		snapshot   *domain.Session
	)
	err = h.sessions.WithSession(ctx, id, func(s *domain.Session) error {
		if s.CurrentQuestion == nil {
			if _, qErr := h.engine.NextQuestion(s); qErr != nil {
				return qErr
			}
		}
		q := *s.CurrentQuestion

		ev, evErr := h.evaluator.Evaluate(ctx, q, req.StudentAnswer, req.Explanation)
		if evErr != nil {
			// The oracle being down must not strand the learner.
			h.log.Warn("evaluation failed, recording zero score", "session_id", s.ID, "question_id", q.ID, "error", evErr)
			ev = scoring.ZeroEvaluation()
		}
		h.engine.RecordEvaluation(s, domain.Response{
			QuestionID:  q.ID,
			Answer:      req.StudentAnswer,
			Explanation: req.Explanation,
			Evaluation:  ev,
		})
		evaluation = ev

		if h.engine.IsComplete(s) {
			s.Status = domain.SessionCompleted
			finished = true
		} else {
			q2, qErr := h.engine.NextQuestion(s)
			switch {
			case qErr == nil:
				nextQ = q2
			case errors.Is(qErr, errs.ErrBankExhausted):
				s.Status = domain.SessionCompleted
				finished = true
			default:
				return qErr
			}
		}
		summary = h.engine.Summarize(s)
		snapshot = s.Clone()
		return nil
	})
	if err != nil {
		h.respondSessionError(c, err)
		return
	}

	progress := grades.ProgressInProgress
	if finished {
		progress = grades.ProgressCompleted
	}
	go h.submitGrade(snapshot, summary, progress)

	payload := gin.H{
		"session_id": id.String(),
		"evaluation": evaluation,
		"finished":   finished,
	}
	if finished {
		payload["summary"] = summary
	} else {
		payload["question"] = nextQ
		payload["question_number"] = snapshot.QuestionNumber
		payload["max_questions"] = snapshot.MaxQuestions
	}
	response.RespondOK(c, payload)
}

// Status reports session state without mutating it. It keeps working after
// completion or expiry so the UI can render a closing screen.
func (h *AssessmentHandler) Status(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	sess, err := h.sessions.Get(c.Request.Context(), id)
	if err != nil {
		h.respondSessionError(c, err)
		return
	}
	payload := gin.H{
		"session_id":      sess.ID.String(),
		"status":          sess.Status,
		"question_number": sess.QuestionNumber,
		"max_questions":   sess.MaxQuestions,
		"bloom_level":     sess.BloomLevel,
		"difficulty":      sess.Difficulty,
		"gradable":        sess.Launch.Gradable(),
	}
	if sess.CurrentQuestion != nil && sess.Status == domain.SessionActive {
		payload["question"] = sess.CurrentQuestion
	}
	if sess.Status == domain.SessionCompleted {
		payload["summary"] = h.engine.Summarize(sess)
	}
	response.RespondOK(c, payload)
}

func (h *AssessmentHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_session_id", err)
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), id); err != nil {
		h.respondSessionError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"deleted": id.String()})
}

func (h *AssessmentHandler) submitGrade(sess *domain.Session, sum domain.Summary, progress grades.Progress) {
	ctx, cancel := context.WithTimeout(context.Background(), gradeSubmitTimeout)
	defer cancel()
	if _, err := h.reporter.Submit(ctx, sess, sum, progress); err != nil {
		h.log.Error("grade submission failed", "session_id", sess.ID, "error", err)
	}
}

func (h *AssessmentHandler) respondSessionError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, errs.ErrSessionNotFound):
		response.RespondError(c, http.StatusNotFound, "session_not_found", err)
	case errors.Is(err, errs.ErrSessionExpired):
		response.RespondError(c, http.StatusGone, "session_expired", err)
	default:
		response.RespondError(c, http.StatusInternalServerError, "internal_error", err)
	}
}
