package booking

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wolfman30/praxis-booking/internal/identity"
	"github.com/wolfman30/praxis-booking/internal/sessions"
	"github.com/wolfman30/praxis-booking/internal/slots"
	"github.com/wolfman30/praxis-booking/internal/wizard"
	"github.com/wolfman30/praxis-booking/pkg/logging"
)

const maxBodyBytes = 64 << 10

// Handler exposes the wizard over HTTP. Every route expects an authenticated
// user id in the request context.
type Handler struct {
	svc    *Service
	logger *logging.Logger
}

func NewHandler(svc *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger}
}

// Routes mounts the booking API on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Get("/sessions/active", h.GetActiveSession)
	r.Route("/sessions/{sessionID}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Delete("/", h.RemoveSession)
		r.Post("/back", h.GoBack)
		r.Get("/slots", h.CalendarSlots)

		r.Post("/privacy", h.AcceptPrivacy)
		r.Post("/location", h.SelectLocation)
		r.Post("/patient-status", h.SelectPatientStatus)
		r.Post("/age-check", h.ConfirmAgeCheck)
		r.Post("/insurance-type", h.SelectInsuranceType)
		r.Post("/gkv-details", h.ConfirmGKVDetails)
		r.Post("/pvs-consent", h.AcceptPVSConsent)
		r.Post("/pkv-details", h.ConfirmPKVDetails)
		r.Post("/new/appointment-type", h.SelectNewAppointmentType)
		r.Post("/new/personal-data", h.SubmitNewPersonalData)
		r.Post("/new/slot", h.SelectNewCalendarSlot)
		r.Post("/doctor", h.SelectDoctor)
		r.Post("/existing/appointment-type", h.SelectExistingAppointmentType)
		r.Post("/existing/personal-data", h.SubmitExistingPersonalData)
		r.Post("/existing/slot", h.SelectExistingCalendarSlot)
	})
}

type sessionResponse struct {
	SessionID    uuid.UUID       `json:"sessionId"`
	PracticeID   uuid.UUID       `json:"practiceId"`
	RuleSetID    uuid.UUID       `json:"ruleSetId"`
	Step         wizard.Step     `json:"step"`
	State        wizard.Envelope `json:"state"`
	CreatedAt    time.Time       `json:"createdAt"`
	LastModified time.Time       `json:"lastModified"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

func toResponse(s *sessions.Session) sessionResponse {
	return sessionResponse{
		SessionID:    s.ID,
		PracticeID:   s.PracticeID,
		RuleSetID:    s.RuleSetID,
		Step:         s.Step(),
		State:        wizard.Envelope{State: s.State},
		CreatedAt:    s.CreatedAt,
		LastModified: s.LastModified,
		ExpiresAt:    s.ExpiresAt,
	}
}

type errorResponse struct {
	Error    string        `json:"error"`
	Code     string        `json:"code"`
	Expected []wizard.Step `json:"expected,omitempty"`
	Actual   wizard.Step   `json:"actual,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusFor maps an engine error to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found"
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden, "access_denied"
	case errors.Is(err, ErrSessionExpired):
		return http.StatusGone, "session_expired"
	case errors.Is(err, ErrInvalidStep):
		return http.StatusConflict, "invalid_step"
	case errors.Is(err, ErrBackNotAllowed):
		return http.StatusConflict, "back_not_allowed"
	case errors.Is(err, ErrSlotUnavailable):
		return http.StatusConflict, "slot_unavailable"
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, ErrInvariantViolation):
		return http.StatusInternalServerError, "invariant_violation"
	}
	return http.StatusInternalServerError, "internal"
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	resp := errorResponse{Error: err.Error(), Code: code}
	var stepErr *StepError
	if errors.As(err, &stepErr) {
		resp.Expected = stepErr.Expected
		resp.Actual = stepErr.Actual
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("booking request failed", "path", r.URL.Path, "error", err)
		// Internal detail stays in the log.
		resp.Error = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

func (h *Handler) badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}

func userID(r *http.Request) string {
	id, _ := identity.UserIDFromContext(r.Context())
	return id
}

func (h *Handler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "sessionID"))
	if err != nil {
		h.badRequest(w, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.badRequest(w, "invalid request body")
		return false
	}
	return true
}

func queryUUID(r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.URL.Query().Get(key))
	return id, err == nil
}

type createSessionRequest struct {
	PracticeID uuid.UUID `json:"practiceId"`
	RuleSetID  uuid.UUID `json:"ruleSetId"`
}

// CreateSession handles POST /sessions.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !h.decode(w, r, &req) {
		return
	}
	id, err := h.svc.CreateSession(r.Context(), userID(r), req.PracticeID, req.RuleSetID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"sessionId": id})
}

// GetActiveSession handles GET /sessions/active?practiceId=&ruleSetId=.
func (h *Handler) GetActiveSession(w http.ResponseWriter, r *http.Request) {
	practiceID, ok := queryUUID(r, "practiceId")
	if !ok {
		h.badRequest(w, "invalid practiceId")
		return
	}
	ruleSetID, ok := queryUUID(r, "ruleSetId")
	if !ok {
		h.badRequest(w, "invalid ruleSetId")
		return
	}
	sess, err := h.svc.GetActiveSessionForUser(r.Context(), userID(r), practiceID, ruleSetID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sess == nil {
		h.fail(w, r, ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(sess))
}

// GetSession handles GET /sessions/{sessionID}. Missing, expired and foreign
// sessions all answer 404.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	sess, err := h.svc.GetSession(r.Context(), userID(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if sess == nil {
		h.fail(w, r, ErrSessionNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toResponse(sess))
}

// RemoveSession handles DELETE /sessions/{sessionID}.
func (h *Handler) RemoveSession(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveSession(r.Context(), userID(r), id); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GoBack handles POST /sessions/{sessionID}/back.
func (h *Handler) GoBack(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	step, err := h.svc.GoBack(r.Context(), userID(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]wizard.Step{"step": step})
}

// CalendarSlots handles GET /sessions/{sessionID}/slots?from=&to= with RFC 3339
// bounds.
func (h *Handler) CalendarSlots(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	from, err := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	if err != nil {
		h.badRequest(w, "invalid from")
		return
	}
	to, err := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if err != nil {
		h.badRequest(w, "invalid to")
		return
	}
	cands, err := h.svc.CalendarSlots(r.Context(), userID(r), id, from, to)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if cands == nil {
		cands = []slots.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string][]slots.Candidate{"slots": cands})
}

// mutation decodes a request body of type T and applies it to the session.
func mutation[T any](h *Handler, apply func(r *http.Request, user string, id uuid.UUID, req T) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.sessionID(w, r)
		if !ok {
			return
		}
		var req T
		if !h.decode(w, r, &req) {
			return
		}
		if err := apply(r, userID(r), id, req); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// booking decodes a slot selection and answers with the new appointment id.
func (h *Handler) booking(w http.ResponseWriter, r *http.Request, apply func(r *http.Request, user string, id uuid.UUID, slot wizard.Slot) (uuid.UUID, error)) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var req slotRequest
	if !h.decode(w, r, &req) {
		return
	}
	apptID, err := apply(r, userID(r), id, wizard.Slot(req))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]uuid.UUID{"appointmentId": apptID})
}

type privacyRequest struct {
	Accepted bool `json:"accepted"`
}

type locationRequest struct {
	LocationID uuid.UUID `json:"locationId"`
}

type patientStatusRequest struct {
	PatientStatus wizard.PatientStatus `json:"patientStatus"`
}

type ageCheckRequest struct {
	IsOver40 *bool `json:"isOver40"`
}

type insuranceTypeRequest struct {
	InsuranceType wizard.InsuranceType `json:"insuranceType"`
}

type gkvDetailsRequest struct {
	HzvStatus wizard.HzvStatus `json:"hzvStatus"`
}

type pvsConsentRequest struct {
	PvsConsent bool `json:"pvsConsent"`
}

type appointmentTypeRequest struct {
	AppointmentTypeID uuid.UUID `json:"appointmentTypeId"`
}

type doctorRequest struct {
	PractitionerID uuid.UUID `json:"practitionerId"`
}

type existingPersonalDataRequest struct {
	PersonalData wizard.PersonalData `json:"personalData"`
}

type slotRequest struct {
	PractitionerID uuid.UUID `json:"practitionerId"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
}

func (h *Handler) AcceptPrivacy(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req privacyRequest) error {
		return h.svc.AcceptPrivacy(r.Context(), user, id, req.Accepted)
	})(w, r)
}

func (h *Handler) SelectLocation(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req locationRequest) error {
		return h.svc.SelectLocation(r.Context(), user, id, req.LocationID)
	})(w, r)
}

func (h *Handler) SelectPatientStatus(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req patientStatusRequest) error {
		return h.svc.SelectPatientStatus(r.Context(), user, id, req.PatientStatus)
	})(w, r)
}

func (h *Handler) ConfirmAgeCheck(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req ageCheckRequest) error {
		if req.IsOver40 == nil {
			return validation("isOver40 is required")
		}
		return h.svc.ConfirmAgeCheck(r.Context(), user, id, *req.IsOver40)
	})(w, r)
}

func (h *Handler) SelectInsuranceType(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req insuranceTypeRequest) error {
		return h.svc.SelectInsuranceType(r.Context(), user, id, req.InsuranceType)
	})(w, r)
}

func (h *Handler) ConfirmGKVDetails(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req gkvDetailsRequest) error {
		return h.svc.ConfirmGKVDetails(r.Context(), user, id, req.HzvStatus)
	})(w, r)
}

func (h *Handler) AcceptPVSConsent(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req pvsConsentRequest) error {
		return h.svc.AcceptPVSConsent(r.Context(), user, id, req.PvsConsent)
	})(w, r)
}

func (h *Handler) ConfirmPKVDetails(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req wizard.PKVDetails) error {
		return h.svc.ConfirmPKVDetails(r.Context(), user, id, req)
	})(w, r)
}

func (h *Handler) SelectNewAppointmentType(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req appointmentTypeRequest) error {
		return h.svc.SelectNewAppointmentType(r.Context(), user, id, req.AppointmentTypeID)
	})(w, r)
}

func (h *Handler) SubmitNewPersonalData(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req wizard.PatientDetails) error {
		return h.svc.SubmitNewPersonalData(r.Context(), user, id, req)
	})(w, r)
}

func (h *Handler) SelectNewCalendarSlot(w http.ResponseWriter, r *http.Request) {
	h.booking(w, r, func(r *http.Request, user string, id uuid.UUID, slot wizard.Slot) (uuid.UUID, error) {
		return h.svc.SelectNewCalendarSlot(r.Context(), user, id, slot)
	})
}

func (h *Handler) SelectDoctor(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req doctorRequest) error {
		return h.svc.SelectDoctor(r.Context(), user, id, req.PractitionerID)
	})(w, r)
}

func (h *Handler) SelectExistingAppointmentType(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req appointmentTypeRequest) error {
		return h.svc.SelectExistingAppointmentType(r.Context(), user, id, req.AppointmentTypeID)
	})(w, r)
}

func (h *Handler) SubmitExistingPersonalData(w http.ResponseWriter, r *http.Request) {
	mutation(h, func(r *http.Request, user string, id uuid.UUID, req existingPersonalDataRequest) error {
		return h.svc.SubmitExistingPersonalData(r.Context(), user, id, req.PersonalData)
	})(w, r)
}

func (h *Handler) SelectExistingCalendarSlot(w http.ResponseWriter, r *http.Request) {
	h.booking(w, r, func(r *http.Request, user string, id uuid.UUID, slot wizard.Slot) (uuid.UUID, error) {
		return h.svc.SelectExistingCalendarSlot(r.Context(), user, id, slot)
	})
}
