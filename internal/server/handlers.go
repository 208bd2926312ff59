package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mediasite-provisioning/internal/canvas"
	"mediasite-provisioning/internal/provisioning"
	"mediasite-provisioning/internal/store"
)

type provisionRequest struct {
	CourseID   int64  `json:"course_id" validate:"required,gt=0"`
	AccountID  int64  `json:"account_id" validate:"required,gt=0"`
	RootFolder string `json:"root_folder" validate:"omitempty,max=200"`
	Term       string `json:"term" validate:"omitempty,max=100"`
	Year       string `json:"year" validate:"omitempty,len=9"`
}

type provisionResponse struct {
	CourseID   int64             `json:"course_id"`
	CatalogURL string            `json:"catalog_url"`
	CatalogID  string            `json:"catalog_id"`
	FolderIDs  []string          `json:"folder_ids"`
	Roles      map[string]string `json:"roles"`
	State      string            `json:"state"`
}

type problem struct {
	Category     string `json:"category"`
	Message      string `json:"message"`
	Step         string `json:"step,omitempty"`
	AuthorizeURL string `json:"authorize_url,omitempty"`
}

func (s *Server) handleProvision(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}

	var body provisionRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeProblem(w, http.StatusBadRequest, problem{Category: "request error", Message: "invalid JSON body: " + err.Error()})
		return
	}
	if err := s.validate.Struct(body); err != nil {
		writeProblem(w, http.StatusBadRequest, problem{Category: "request error", Message: err.Error()})
		return
	}

	lms, ok := s.canvasFor(w, r, user)
	if !ok {
		return
	}

	var tenant provisioning.Tenant
	t, err := s.deps.Store.Tenant(r.Context(), body.AccountID)
	switch {
	case err == nil:
		tenant = t.Provisioning()
	case errors.Is(err, store.ErrNotFound):
		// Accounts without a row rely on the request and the default credentials.
	default:
		s.log.Error("tenant lookup failed", zap.Int64("account_id", body.AccountID), zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, problem{Category: "unknown error", Message: "could not load account settings"})
		return
	}

	res, err := s.deps.Run(r.Context(), lms, provisioning.Request{
		CourseID:       body.CourseID,
		AccountID:      body.AccountID,
		RootFolderName: body.RootFolder,
		TermName:       body.Term,
		Year:           body.Year,
		Tenant:         tenant,
		ActingUser:     user,
	})
	if err != nil {
		s.provisionFailed(w, r, user, err)
		return
	}

	writeJSON(w, http.StatusOK, provisionResponse{
		CourseID:   res.CourseID,
		CatalogURL: res.CatalogURL,
		CatalogID:  res.CatalogID,
		FolderIDs:  res.FolderIDs,
		Roles:      res.Roles,
		State:      res.State.String(),
	})
}

func (s *Server) provisionFailed(w http.ResponseWriter, r *http.Request, user string, err error) {
	p := problem{Category: "unknown error", Message: err.Error()}
	status := http.StatusInternalServerError

	var pe *provisioning.Error
	if errors.As(err, &pe) {
		p.Category = pe.Category()
		p.Message = pe.Err.Error()
		p.Step = pe.Step.String()
		switch pe.Kind {
		case provisioning.KindUnauthorized:
			status = http.StatusUnauthorized
			p.AuthorizeURL = s.authorizeURL()
		case provisioning.KindPrecondition, provisioning.KindConflict:
			status = http.StatusUnprocessableEntity
		case provisioning.KindCanvas, provisioning.KindMediasite:
			status = http.StatusBadGateway
		}
	}

	if logErr := s.deps.Store.LogError(r.Context(), user, p.Category+": "+p.Message); logErr != nil {
		s.log.Warn("could not record provisioning error", zap.Error(logErr))
	}
	s.log.Warn("provisioning failed", zap.String("user", user), zap.Int("status", status), zap.Error(err))
	writeProblem(w, status, p)
}

func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	if s.deps.OAuth == nil {
		writeProblem(w, http.StatusNotImplemented, problem{Category: "Canvas error", Message: "oauth is not configured"})
		return
	}
	if msg := r.URL.Query().Get("error"); msg != "" {
		writeProblem(w, http.StatusBadRequest, problem{Category: "Canvas error", Message: msg, AuthorizeURL: s.authorizeURL()})
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		writeProblem(w, http.StatusBadRequest, problem{Category: "request error", Message: "missing code"})
		return
	}

	token, err := s.deps.OAuth.Exchange(r.Context(), code)
	if err != nil {
		s.log.Warn("oauth exchange failed", zap.String("user", user), zap.Error(err))
		msg := err.Error()
		var se *canvas.ServiceError
		if errors.As(err, &se) && se.RemoteMessage != "" {
			msg = se.RemoteMessage
		}
		writeProblem(w, http.StatusBadGateway, problem{Category: "Canvas error", Message: msg, AuthorizeURL: s.authorizeURL()})
		return
	}
	if err := s.deps.Store.SaveAPIToken(r.Context(), user, token); err != nil {
		s.log.Error("could not save canvas token", zap.String("user", user), zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, problem{Category: "unknown error", Message: "could not save token"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "authorized"})
}

func (s *Server) handleAccounts(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	c, ok := s.canvasFor(w, r, user)
	if !ok {
		return
	}
	accounts, err := c.Accounts(r.Context())
	if err != nil {
		s.canvasFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

type coursesResponse struct {
	Courses []canvas.Course  `json:"courses"`
	Next    canvas.PageToken `json:"next,omitempty"`
}

func (s *Server) handleCourses(w http.ResponseWriter, r *http.Request) {
	user, ok := s.requireUser(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	accountID, err := strconv.ParseInt(q.Get("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		writeProblem(w, http.StatusBadRequest, problem{Category: "request error", Message: "account_id must be a positive integer"})
		return
	}
	c, ok := s.canvasFor(w, r, user)
	if !ok {
		return
	}
	page, err := c.SearchCourses(r.Context(), accountID, q.Get("q"), canvas.PageToken(q.Get("page")))
	if err != nil {
		if errors.Is(err, canvas.ErrSearchTermTooShort) {
			writeProblem(w, http.StatusBadRequest, problem{Category: "request error", Message: err.Error()})
			return
		}
		s.canvasFailed(w, err)
		return
	}
	writeJSON(w, http.StatusOK, coursesResponse{Courses: page.Courses, Next: page.Links.Next})
}

func (s *Server) canvasFailed(w http.ResponseWriter, err error) {
	if canvas.IsUnauthorized(err) {
		writeProblem(w, http.StatusUnauthorized, problem{Category: "Canvas error", Message: "canvas token was rejected", AuthorizeURL: s.authorizeURL()})
		return
	}
	s.log.Warn("canvas request failed", zap.Error(err))
	writeProblem(w, http.StatusBadGateway, problem{Category: "Canvas error", Message: err.Error()})
}

func (s *Server) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	user := strings.TrimSpace(r.Header.Get(userHeader))
	if user == "" {
		writeProblem(w, http.StatusUnauthorized, problem{Category: "request error", Message: "missing " + userHeader + " header"})
		return "", false
	}
	return user, true
}

// canvasFor returns a client acting as user, or answers 401 when no token is stored.
func (s *Server) canvasFor(w http.ResponseWriter, r *http.Request, user string) (Canvas, bool) {
	token, err := s.deps.Store.APIToken(r.Context(), user)
	if errors.Is(err, store.ErrNotFound) || (err == nil && token == "") {
		writeProblem(w, http.StatusUnauthorized, problem{Category: "Canvas error", Message: "no canvas token for " + user, AuthorizeURL: s.authorizeURL()})
		return nil, false
	}
	if err != nil {
		s.log.Error("token lookup failed", zap.String("user", user), zap.Error(err))
		writeProblem(w, http.StatusInternalServerError, problem{Category: "unknown error", Message: "could not load canvas token"})
		return nil, false
	}
	return s.deps.NewCanvas(token), true
}

func (s *Server) authorizeURL() string {
	if s.deps.OAuth == nil {
		return ""
	}
	return s.deps.OAuth.AuthorizeURL(uuid.NewString())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeProblem(w http.ResponseWriter, status int, p problem) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}
