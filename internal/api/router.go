package api

import (
	"encoding/json"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/middleware"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/services"
	"github.com/Digital-Minimalist-Lab/30-day-cohorts-webapp/internal/timeutil"
)

// Router wires the HTTP surface to the services. Handlers decode JSON,
// call a service, map ServiceError codes to status codes and encode the
// result.
type Router struct {
	store       Store
	log         zerolog.Logger
	auth        *services.AuthService
	profiles    *services.ProfileService
	tasks       *services.TaskService
	enrollments *services.EnrollmentService
	submissions *services.SubmissionService
	designs     *services.DesignService
	progress    *services.ProgressService
	exports     *services.ExportService
	reminders   *services.ReminderService
	authLimiter *middleware.PerIPLimiter
}

type RouterOptions struct {
	Log         zerolog.Logger
	TokenTTL    time.Duration
	AdminEmails []string
	// Reminders enables POST /api/admin/reminders/run when set.
	Reminders *services.ReminderService
	// Auth endpoints are rate limited per client IP.
	AuthRPS   float64
	AuthBurst int
}

func NewRouter(store Store, opts RouterOptions) *Router {
	auth := services.NewAuthService(store, middleware.SignToken)
	auth.SetTokenTTL(opts.TokenTTL)
	auth.SetAdminEmails(opts.AdminEmails)

	rps := opts.AuthRPS
	if rps <= 0 {
		rps = 5
	}
	burst := opts.AuthBurst
	if burst <= 0 {
		burst = 10
	}

	tasks := services.NewTaskService(store)
	return &Router{
		store:       store,
		log:         opts.Log,
		auth:        auth,
		profiles:    services.NewProfileService(store),
		tasks:       tasks,
		enrollments: services.NewEnrollmentService(store),
		submissions: services.NewSubmissionService(store),
		designs:     services.NewDesignService(store),
		progress:    services.NewProgressService(store, tasks),
		exports:     services.NewExportService(store),
		reminders:   opts.Reminders,
		authLimiter: middleware.NewPerIPLimiter(rps, burst),
	}
}

// Register mounts all routes. Callers must wrap the mux with
// middleware.WithAuth so bearer claims reach the handlers.
func (rt *Router) Register(mux *http.ServeMux) {
	mux.Handle("/api/auth/register", rt.authLimiter.Limit(http.HandlerFunc(rt.handleRegister)))
	mux.Handle("/api/auth/login", rt.authLimiter.Limit(http.HandlerFunc(rt.handleLogin)))
	mux.HandleFunc("/api/cohorts", rt.handleCohorts)
	mux.HandleFunc("/api/cohorts/import", rt.handleImport)
	mux.HandleFunc("/api/cohorts/", rt.handleCohortScoped)
	mux.HandleFunc("/api/surveys/", rt.handleSurvey)
	mux.HandleFunc("/api/me/profile", rt.handleProfile)
	mux.HandleFunc("/api/me/export", rt.handleMeExport)
	mux.HandleFunc("/api/me", rt.handleMe)
	mux.HandleFunc("/api/admin/reminders/run", rt.handleReminderRun)
}

// ---- helpers ----

func (rt *Router) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (rt *Router) writeError(w http.ResponseWriter, err error) {
	if se, ok := services.AsServiceError(err); ok {
		rt.writeJSON(w, statusForCode(se.Code), map[string]string{"error": se.Message})
		return
	}
	rt.log.Error().Err(err).Msg("handler failure")
	rt.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func (rt *Router) writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	rt.writeJSON(w, status, map[string]string{"error": msg})
}

func statusForCode(code services.ErrorCode) int {
	switch code {
	case services.ErrorInvalid:
		return http.StatusBadRequest
	case services.ErrorUnauthorized:
		return http.StatusUnauthorized
	case services.ErrorForbidden:
		return http.StatusForbidden
	case services.ErrorNotFound:
		return http.StatusNotFound
	case services.ErrorConflict:
		return http.StatusConflict
	case services.ErrorTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (rt *Router) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		rt.writeErrorMsg(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (rt *Router) requireUser(w http.ResponseWriter, r *http.Request) (*middleware.Claims, bool) {
	c, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		rt.writeErrorMsg(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return c, true
}

func (rt *Router) requireAdmin(w http.ResponseWriter, r *http.Request) (*middleware.Claims, bool) {
	c, ok := rt.requireUser(w, r)
	if !ok {
		return nil, false
	}
	if !c.Admin {
		rt.writeErrorMsg(w, http.StatusForbidden, "admin only")
		return nil, false
	}
	return c, true
}

func (rt *Router) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		rt.writeErrorMsg(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func boolParam(r *http.Request, name string) bool {
	switch r.URL.Query().Get(name) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// todayFor resolves "today" in the user's profile timezone, letting an
// explicit date query override it.
func (rt *Router) todayFor(r *http.Request, userID string) (timeutil.Date, error) {
	if raw := r.URL.Query().Get("date"); raw != "" {
		d, err := timeutil.ParseDate(raw)
		if err != nil {
			return timeutil.Date{}, services.NewInvalidError("date must be YYYY-MM-DD")
		}
		return d, nil
	}
	return rt.profiles.Today(userID)
}

// ---- auth ----

type userPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Admin bool   `json:"admin"`
}

type authResponse struct {
	Token string      `json:"token"`
	User  userPayload `json:"user"`
}

func authResponseFor(res *services.AuthResult) authResponse {
	return authResponse{
		Token: res.Token,
		User:  userPayload{ID: res.UserID, Email: res.Email, Admin: res.Admin},
	}
}

// POST /api/auth/register
func (rt *Router) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !rt.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !rt.decode(w, r, &req) {
		return
	}
	res, err := rt.auth.Register(req.Email, req.Password, req.Name)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, authResponseFor(res))
}

// POST /api/auth/login
func (rt *Router) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !rt.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !rt.decode(w, r, &req) {
		return
	}
	res, err := rt.auth.Login(req.Email, req.Password)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, authResponseFor(res))
}

// ---- cohorts ----

type cohortSummary struct {
	*services.Cohort
	SeatsAvailable   *int                      `json:"seats_available,omitempty"`
	EnrollmentStatus services.EnrollmentStatus `json:"enrollment_status,omitempty"`
}

// GET /api/cohorts: joinable cohorts; with auth, the caller's enrolled
// cohorts are folded in with their enrollment status.
// POST /api/cohorts: admin create, inline design or the default template.
func (rt *Router) handleCohorts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		rt.listCohorts(w, r)
	case http.MethodPost:
		rt.createCohort(w, r)
	default:
		rt.writeErrorMsg(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (rt *Router) listCohorts(w http.ResponseWriter, r *http.Request) {
	today := timeutil.DateOf(time.Now().UTC())
	claims, authed := middleware.ClaimsFromContext(r.Context())
	if authed {
		if d, err := rt.profiles.Today(claims.UID); err == nil {
			today = d
		}
	}

	joinable, err := rt.enrollments.JoinableCohorts(today)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	byID := map[string]*cohortSummary{}
	out := make([]*cohortSummary, 0, len(joinable))
	for _, c := range joinable {
		s := &cohortSummary{Cohort: c}
		if c.MaxSeats > 0 {
			n, err := rt.store.CountActiveEnrollments(c.ID)
			if err != nil {
				rt.writeError(w, err)
				return
			}
			free := c.MaxSeats - n
			s.SeatsAvailable = &free
		}
		byID[c.ID] = s
		out = append(out, s)
	}

	if authed {
		es, err := rt.store.ListUserEnrollments(claims.UID)
		if err != nil {
			rt.writeError(w, err)
			return
		}
		for _, e := range es {
			if s, ok := byID[e.CohortID]; ok {
				s.EnrollmentStatus = e.Status
				continue
			}
			c, err := rt.store.GetCohort(e.CohortID)
			if err != nil {
				rt.writeError(w, err)
				return
			}
			if c == nil {
				continue
			}
			s := &cohortSummary{Cohort: c, EnrollmentStatus: e.Status}
			byID[c.ID] = s
			out = append(out, s)
		}
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartDate.Equal(out[j].StartDate) {
			return out[i].StartDate.Before(out[j].StartDate)
		}
		return out[i].ID < out[j].ID
	})
	rt.writeJSON(w, http.StatusOK, map[string]any{"cohorts": out, "today": today})
}

func (rt *Router) createCohort(w http.ResponseWriter, r *http.Request) {
	if _, ok := rt.requireAdmin(w, r); !ok {
		return
	}
	var req struct {
		services.CreateCohortInput
		Template string                 `json:"template"`
		Design   *services.CohortDesign `json:"design"`
	}
	if !rt.decode(w, r, &req) {
		return
	}

	var (
		cohort *services.Cohort
		err    error
	)
	switch {
	case req.Design != nil:
		cohort, err = rt.designs.Import(req.Design, req.StartDate)
	default:
		req.UseDefaultDesign = req.UseDefaultDesign || req.Template == "default"
		cohort, err = rt.designs.CreateCohort(req.CreateCohortInput)
	}
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, cohort)
}

// POST /api/cohorts/import?start=YYYY-MM-DD[&validate=1]: body is a YAML
// or JSON design document, by Content-Type.
func (rt *Router) handleImport(w http.ResponseWriter, r *http.Request) {
	if !rt.requireMethod(w, r, http.MethodPost) {
		return
	}
	if _, ok := rt.requireAdmin(w, r); !ok {
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		rt.writeErrorMsg(w, http.StatusBadRequest, "unreadable request body")
		return
	}
	format := services.FormatYAML
	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		format = services.FormatJSON
	}
	design, err := services.ParseDesign(body, format)
	if err != nil {
		rt.writeError(w, err)
		return
	}

	if boolParam(r, "validate") {
		problems := design.Validate()
		rt.writeJSON(w, http.StatusOK, map[string]any{"valid": len(problems) == 0, "problems": problems})
		return
	}

	var start timeutil.Date
	if raw := r.URL.Query().Get("start"); raw != "" {
		if start, err = timeutil.ParseDate(raw); err != nil {
			rt.writeErrorMsg(w, http.StatusBadRequest, "start must be YYYY-MM-DD")
			return
		}
	}
	cohort, err := rt.designs.Import(design, start)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, cohort)
}

// handleCohortScoped dispatches /api/cohorts/{id}/...
func (rt *Router) handleCohortScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/cohorts/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	cohortID := parts[0]

	switch parts[1] {
	case "enroll":
		rt.handleEnroll(w, r, cohortID)
	case "tasks":
		rt.handleTasks(w, r, cohortID)
	case "submissions":
		rt.handleSubmit(w, r, cohortID)
	case "progress":
		rt.handleProgress(w, r, cohortID)
	case "design":
		rt.handleDesignExport(w, r, cohortID)
	case "export":
		rt.handleCSVExport(w, r, cohortID)
	case "enrollments":
		if len(parts) == 4 && parts[3] == "activate" {
			rt.handleActivate(w, r, cohortID, parts[2])
			return
		}
		http.NotFound(w, r)
	default:
		http.NotFound(w, r)
	}
}

// POST /api/cohorts/{id}/enroll
func (rt *Router) handleEnroll(w http.ResponseWriter, r *http.Request, cohortID string) {
	if !rt.requireMethod(w, r, http.MethodPost) {
		return
	}
	c, ok := rt.requireUser(w, r)
	if !ok {
		return
	}
	today, err := rt.profiles.Today(c.UID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	e, err := rt.enrollments.Enroll(c.UID, cohortID, today)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, e)
}

// GET /api/cohorts/{id}/tasks[?date=YYYY-MM-DD]
func (rt *Router) handleTasks(w http.ResponseWriter, r *http.Request, cohortID string) {
	if !rt.requireMethod(w, r, http.MethodGet) {
		return
	}
	c, ok := rt.requireUser(w, r)
	if !ok {
		return
	}
	if _, err := rt.enrollments.RequireActive(c.UID, cohortID); err != nil {
		rt.writeError(w, err)
		return
	}
	today, err := rt.todayFor(r, c.UID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	pending, completed, err := rt.tasks.UserTasks(c.UID, cohortID, today)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{
		"today":           today,
		"pending":         pending,
		"completed":       completed,
		"pending_count":   len(pending),
		"completed_count": len(completed),
	})
}

// POST /api/cohorts/{id}/submissions
func (rt *Router) handleSubmit(w http.ResponseWriter, r *http.Request, cohortID string) {
	if !rt.requireMethod(w, r, http.MethodPost) {
		return
	}
	c, ok := rt.requireUser(w, r)
	if !ok {
		return
	}
	var in services.SubmitInput
	if !rt.decode(w, r, &in) {
		return
	}
	in.CohortID = cohortID
	today, err := rt.profiles.Today(c.UID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	sub, err := rt.submissions.Submit(c.UID, in, today)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, sub)
}

// GET /api/cohorts/{id}/progress
func (rt *Router) handleProgress(w http.ResponseWriter, r *http.Request, cohortID string) {
	if !rt.requireMethod(w, r, http.MethodGet) {
		return
	}
	c, ok := rt.requireUser(w, r)
	if !ok {
		return
	}
	if _, err := rt.enrollments.RequireActive(c.UID, cohortID); err != nil {
		rt.writeError(w, err)
		return
	}
	today, err := rt.profiles.Today(c.UID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	report, err := rt.progress.Report(c.UID, cohortID, today)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, report)
}

// GET /api/cohorts/{id}/design?format=yaml|json
func (rt *Router) handleDesignExport(w http.ResponseWriter, r *http.Request, cohortID string) {
	if !rt.requireMethod(w, r, http.MethodGet) {
		return
	}
	if _, ok := rt.requireAdmin(w, r); !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = services.FormatYAML
	}
	if format != services.FormatYAML && format != services.FormatJSON {
		rt.writeErrorMsg(w, http.StatusBadRequest, "format must be yaml or json")
		return
	}
	design, err := rt.designs.Export(cohortID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	data, err := services.EncodeDesign(design, format)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	if format == services.FormatJSON {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Content-Disposition", "attachment; filename=design.json")
	} else {
		w.Header().Set("Content-Type", "application/x-yaml")
		w.Header().Set("Content-Disposition", "attachment; filename=design.yaml")
	}
	_, _ = w.Write(data)
}

// GET /api/cohorts/{id}/export?format=long|wide
func (rt *Router) handleCSVExport(w http.ResponseWriter, r *http.Request, cohortID string) {
	if !rt.requireMethod(w, r, http.MethodGet) {
		return
	}
	c, ok := rt.requireAdmin(w, r)
	if !ok {
		return
	}
	res, err := rt.exports.ExportCohortCSV(cohortID, r.URL.Query().Get("format"), c.Email)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", res.ContentType)
	w.Header().Set("Content-Disposition", "attachment; filename="+res.Filename)
	_, _ = w.Write(res.Data)
}

// POST /api/cohorts/{id}/enrollments/{userID}/activate
func (rt *Router) handleActivate(w http.ResponseWriter, r *http.Request, cohortID, userID string) {
	if !rt.requireMethod(w, r, http.MethodPost) {
		return
	}
	if _, ok := rt.requireAdmin(w, r); !ok {
		return
	}
	var req struct {
		AmountCents int `json:"amount_cents"`
	}
	if !rt.decode(w, r, &req) {
		return
	}
	e, err := rt.enrollments.Get(userID, cohortID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	activated, err := rt.enrollments.Activate(e.ID, req.AmountCents)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, activated)
}

// GET /api/surveys/{slug}: survey with its ordered questions, for
// rendering forms.
func (rt *Router) handleSurvey(w http.ResponseWriter, r *http.Request) {
	if !rt.requireMethod(w, r, http.MethodGet) {
		return
	}
	slug := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/surveys/"), "/")
	if slug == "" || strings.Contains(slug, "/") {
		http.NotFound(w, r)
		return
	}
	sv, err := rt.store.GetSurveyBySlug(slug)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	if sv == nil {
		rt.writeErrorMsg(w, http.StatusNotFound, "survey not found")
		return
	}
	qs, err := rt.store.ListQuestions(sv.ID)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{"survey": sv, "questions": qs})
}

// ---- account ----

// GET/PUT /api/me/profile
func (rt *Router) handleProfile(w http.ResponseWriter, r *http.Request) {
	c, ok := rt.requireUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		p, err := rt.profiles.Resolve(c.UID)
		if err != nil {
			rt.writeError(w, err)
			return
		}
		rt.writeJSON(w, http.StatusOK, p)
	case http.MethodPut:
		var in services.ProfileUpdate
		if !rt.decode(w, r, &in) {
			return
		}
		p, err := rt.profiles.Update(c.UID, in)
		if err != nil {
			rt.writeError(w, err)
			return
		}
		rt.writeJSON(w, http.StatusOK, p)
	default:
		rt.writeErrorMsg(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// GET /api/me/export: full data bundle for the caller
func (rt *Router) handleMeExport(w http.ResponseWriter, r *http.Request) {
	if !rt.requireMethod(w, r, http.MethodGet) {
		return
	}
	c, ok := rt.requireUser(w, r)
	if !ok {
		return
	}
	bundle, err := rt.exports.ExportUser(c.UID, c.Email)
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, bundle)
}

// DELETE /api/me?hard=1
func (rt *Router) handleMe(w http.ResponseWriter, r *http.Request) {
	if !rt.requireMethod(w, r, http.MethodDelete) {
		return
	}
	c, ok := rt.requireUser(w, r)
	if !ok {
		return
	}
	hard := boolParam(r, "hard")
	if err := rt.exports.DeleteUser(c.UID, hard, c.Email); err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, map[string]any{"ok": true, "hard": hard})
}

// ---- admin ----

// POST /api/admin/reminders/run?dry_run=1&force=1
func (rt *Router) handleReminderRun(w http.ResponseWriter, r *http.Request) {
	if !rt.requireMethod(w, r, http.MethodPost) {
		return
	}
	if _, ok := rt.requireAdmin(w, r); !ok {
		return
	}
	if rt.reminders == nil {
		rt.writeErrorMsg(w, http.StatusServiceUnavailable, "reminders are not configured")
		return
	}
	stats, err := rt.reminders.SweepAll(r.Context(), services.SweepOptions{
		DryRun: boolParam(r, "dry_run"),
		Force:  boolParam(r, "force"),
	})
	if err != nil {
		rt.writeError(w, err)
		return
	}
	rt.writeJSON(w, http.StatusOK, stats)
}
