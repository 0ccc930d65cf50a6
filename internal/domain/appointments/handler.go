package appointments

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/middleware"
	"vet-appointments/internal/platform/logger"
	"vet-appointments/internal/platform/respond"
)

// Formatos aceptados para date_time. Sin zona se interpreta en la zona de la clínica.
var localLayouts = []string{"2006-01-02T15:04", "2006-01-02 15:04"}

func RegisterRoutes(r chi.Router, svc *Service, log logger.Logger, now func() time.Time) {
	h := &handler{svc: svc, log: log, now: now}

	r.Route("/appointments", func(ar chi.Router) {
		ar.Get("/", h.list)
		ar.Post("/", h.create)
		ar.Get("/{appointmentID}", h.get)
		ar.Put("/{appointmentID}", h.edit)
		ar.Delete("/{appointmentID}", h.delete)

		// Autogestión del cliente
		ar.Post("/{appointmentID}/cancel", h.cancel)
	})
}

type handler struct {
	svc *Service
	log logger.Logger
	now func() time.Time
}

// appointmentRequest es el cuerpo para crear o editar un turno.
type appointmentRequest struct {
	DateTime       string `json:"date_time"` // RFC3339 o YYYY-MM-DDTHH:MM
	PetID          string `json:"pet_id"`
	VeterinarianID string `json:"veterinarian_id"` // ignorado si lo pide un veterinario
}

// appointmentResponse representa un turno devuelto por la API.
type appointmentResponse struct {
	ID             string       `json:"id"`
	DateTime       time.Time    `json:"date_time"`
	State          clinic.State `json:"state"`
	PetID          string       `json:"pet_id"`
	VeterinarianID *string      `json:"veterinarian_id"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// list godoc
// @Summary Listar turnos
// @Description Administrador ve todos; Veterinario los asignados a él; Cliente los de sus mascotas. Más reciente primero.
// @Tags appointments
// @Produce json
// @Param X-Debug-User-ID header string false "Solo en modo dev"
// @Success 200 {array} appointmentResponse
// @Failure 401 {object} map[string]string
// @Failure 403 {object} respond.ErrorBody
// @Router /appointments [get]
func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var items []clinic.Appointment
	err := clinic.RetryOnce(func() error {
		var err error
		items, err = h.svc.List(r.Context(), req)
		return err
	})
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	out := make([]appointmentResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toResponse(a))
	}
	respond.JSON(w, http.StatusOK, out)
}

// create godoc
// @Summary Crear turno
// @Description Administrador debe elegir veterinario. Veterinario queda asignado a sí mismo. El turno nace Confirmado.
// @Tags appointments
// @Accept json
// @Produce json
// @Param payload body appointmentRequest true "Datos del turno"
// @Success 201 {object} appointmentResponse
// @Failure 409 {object} respond.ErrorBody "conflicto de horario"
// @Failure 422 {object} respond.ErrorBody "errores de campo"
// @Router /appointments [post]
func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	in, err := h.decode(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	a, err := h.svc.Create(r.Context(), req, in)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, toResponse(a))
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var a clinic.Appointment
	err := clinic.RetryOnce(func() error {
		var err error
		a, err = h.svc.Get(r.Context(), req, chi.URLParam(r, "appointmentID"))
		return err
	})
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, toResponse(a))
}

// edit godoc
// @Summary Editar turno
// @Description Administrador edita cualquiera; Veterinario solo los asignados a él.
// @Tags appointments
// @Accept json
// @Produce json
// @Param appointmentID path string true "ID del turno"
// @Param payload body appointmentRequest true "Datos del turno"
// @Success 200 {object} appointmentResponse
// @Failure 403 {object} respond.ErrorBody
// @Failure 409 {object} respond.ErrorBody
// @Router /appointments/{appointmentID} [put]
func (h *handler) edit(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	in, err := h.decode(r)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	a, err := h.svc.Edit(r.Context(), req, chi.URLParam(r, "appointmentID"), in)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, toResponse(a))
}

func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "appointmentID")
	if err := h.svc.DeleteByAdministrator(r.Context(), req, id); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// cancel godoc
// @Summary Cancelar turno propio
// @Description Solo el cliente dueño de la mascota, antes de la hora del turno y si sigue activo.
// @Tags appointments
// @Produce json
// @Param appointmentID path string true "ID del turno"
// @Success 200 {object} appointmentResponse
// @Failure 404 {object} respond.ErrorBody "reason=not-found"
// @Failure 422 {object} respond.ErrorBody "reason=already-past | already-cancelled"
// @Router /appointments/{appointmentID}/cancel [post]
func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := clinic.Require(req, clinic.CapAppointmentsCancelOwn); err != nil {
		respond.Error(w, h.log, err)
		return
	}

	a, err := h.svc.CancelByClient(r.Context(), chi.URLParam(r, "appointmentID"), req.UserID, h.now())
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, toResponse(a))
}

func (h *handler) decode(r *http.Request) (Input, error) {
	var body appointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var v clinic.Validation
		v.Add("body", "json", "invalid json")
		return Input{}, v.Err()
	}

	in := Input{PetID: body.PetID, VeterinarianID: body.VeterinarianID}
	if raw := strings.TrimSpace(body.DateTime); raw != "" {
		t, ok := parseDateTime(raw, h.now().Location())
		if !ok {
			var v clinic.Validation
			v.Add("date_time", "format", "must be RFC3339 or YYYY-MM-DDTHH:MM")
			return Input{}, v.Err()
		}
		in.DateTime = t
	}
	return in, nil
}

func parseDateTime(raw string, loc *time.Location) (time.Time, bool) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, raw, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func toResponse(a clinic.Appointment) appointmentResponse {
	out := appointmentResponse{
		ID:        a.ID,
		DateTime:  a.DateTime,
		State:     a.State,
		PetID:     a.PetID,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
	if a.Assigned() {
		vid := a.VeterinarianID
		out.VeterinarianID = &vid
	}
	return out
}
