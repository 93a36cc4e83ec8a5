package handlers

import (
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/adaptest-backend/internal/assessment/engine"
	"github.com/yungbote/adaptest-backend/internal/assessment/store"
	"github.com/yungbote/adaptest-backend/internal/domain"
	"github.com/yungbote/adaptest-backend/internal/http/response"
	"github.com/yungbote/adaptest-backend/internal/lti/keys"
	"github.com/yungbote/adaptest-backend/internal/lti/launch"
	"github.com/yungbote/adaptest-backend/internal/platform/logger"
)

type LTIHandler struct {
	log      *logger.Logger
	verifier *launch.Verifier
	keys     *keys.Store
	sessions *store.Store
	engine   *engine.Engine
	toolURL  string
	uiURL    string
	title    string
}

func NewLTIHandler(baseLog *logger.Logger, verifier *launch.Verifier, keyStore *keys.Store, sessions *store.Store, eng *engine.Engine, toolURL, uiURL, title string) *LTIHandler {
	return &LTIHandler{
		log:      baseLog.With("handler", "LTIHandler"),
		verifier: verifier,
		keys:     keyStore,
		sessions: sessions,
		engine:   eng,
		toolURL:  toolURL,
		uiURL:    uiURL,
		title:    title,
	}
}

// Login handles the OIDC third-party-initiated login. Platforms send it as
// either GET or form POST.
func (h *LTIHandler) Login(c *gin.Context) {
	param := func(name string) string {
		if v := c.Query(name); v != "" {
			return v
		}
		return c.PostForm(name)
	}
	req := launch.LoginRequest{
		Issuer:         param("iss"),
		ClientID:       param("client_id"),
		LoginHint:      param("login_hint"),
		TargetLinkURI:  param("target_link_uri"),
		LTIMessageHint: param("lti_message_hint"),
	}

	ri, err := h.verifier.BeginLogin(c.Request.Context(), req)
	if err != nil {
		h.log.Warn("login initiation rejected", "issuer", req.Issuer, "error", err)
		response.RespondAuthFailure(c)
		return
	}
	c.Redirect(http.StatusFound, ri.RedirectURL())
}

// Launch validates the signed assertion, opens or resumes the learner's
// session, and redirects into the assessment UI. Every failure collapses to
// the same opaque 401; the specific kind lands in the logs only.
func (h *LTIHandler) Launch(c *gin.Context) {
	ctx := c.Request.Context()
	idToken := c.PostForm("id_token")
	state := c.PostForm("state")
	if idToken == "" || state == "" {
		h.log.Warn("launch missing id_token or state")
		response.RespondAuthFailure(c)
		return
	}

	verified, err := h.verifier.CompleteLaunch(ctx, idToken, state)
	if err != nil {
		h.log.Warn("launch rejected", "error", err)
		response.RespondAuthFailure(c)
		return
	}

	subject := domain.SubjectRef{
		SubjectID:      verified.SubjectID,
		Issuer:         verified.Issuer,
		ResourceLinkID: verified.ResourceLinkID,
	}
	sess, created, err := h.sessions.StartOrResume(ctx, subject, verified.Name, verified)
	if err != nil {
		h.log.Error("session open failed", "error", err)
		response.RespondError(c, http.StatusInternalServerError, "session_failed", err)
		return
	}

	// Make sure a question is waiting before the UI loads.
	if err := h.sessions.WithSession(ctx, sess.ID, func(s *domain.Session) error {
		if s.CurrentQuestion == nil && !h.engine.IsComplete(s) {
			_, qErr := h.engine.NextQuestion(s)
			return qErr
		}
		return nil
	}); err != nil {
		h.log.Error("initial question selection failed", "session_id", sess.ID, "error", err)
		response.RespondError(c, http.StatusInternalServerError, "assessment_unavailable", err)
		return
	}

	h.log.Info("launch session ready", "session_id", sess.ID, "created", created, "gradable", verified.Gradable())
	if h.uiURL != "" {
		c.Redirect(http.StatusFound, h.uiURL+"?session_id="+url.QueryEscape(sess.ID.String()))
		return
	}
	response.RespondOK(c, gin.H{"session_id": sess.ID.String()})
}

// JWKS publishes the tool's current public signing keys.
func (h *LTIHandler) JWKS(c *gin.Context) {
	c.JSON(http.StatusOK, h.keys.PublicJWKS())
}

// ConfigJSON serves the static registration descriptor. Pure data; not part
// of the protocol logic.
func (h *LTIHandler) ConfigJSON(c *gin.Context) {
	launchURL := h.toolURL + "/lti/launch"
	c.JSON(http.StatusOK, gin.H{
		"title":               h.title,
		"description":         "Adaptive assessment tool with grade passback",
		"oidc_initiation_url": h.toolURL + "/lti/login",
		"target_link_uri":     launchURL,
		"public_jwk_url":      h.toolURL + "/lti/jwks",
		"scopes": []string{
			"https://purl.imsglobal.org/spec/lti-ags/scope/lineitem",
			"https://purl.imsglobal.org/spec/lti-ags/scope/score",
			"https://purl.imsglobal.org/spec/lti-ags/scope/result.readonly",
		},
		"placements": []gin.H{
			{
				"placement":       "assignment_selection",
				"message_type":    "LtiResourceLinkRequest",
				"target_link_uri": launchURL,
				"text":            h.title,
			},
			{
				"placement":       "link_selection",
				"message_type":    "LtiResourceLinkRequest",
				"target_link_uri": launchURL,
				"text":            h.title,
			},
		},
		"custom_fields": gin.H{},
	})
}
