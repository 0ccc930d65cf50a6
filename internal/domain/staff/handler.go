package staff

import (
	"encoding/json"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"vet-appointments/internal/domain/clinic"
	"vet-appointments/internal/middleware"
	"vet-appointments/internal/platform/logger"
	"vet-appointments/internal/platform/respond"
)

func RegisterRoutes(r chi.Router, svc *Service, log logger.Logger) {
	h := &handler{svc: svc, log: log}

	r.Get("/me", h.me)
	r.Get("/roles", h.roles)

	r.Route("/users", func(ur chi.Router) {
		ur.Get("/", h.list)
		ur.Post("/", h.create)
		ur.Get("/{userID}", h.get)
		ur.Put("/{userID}", h.update)
		ur.Delete("/{userID}", h.delete)
		ur.Put("/{userID}/role", h.assignRole)
	})

	// Reparación: perfil de veterinario cuyo usuario ya no tiene el rol.
	r.Post("/veterinarians/{veterinarianID}/retire", h.retire)
}

type handler struct {
	svc *Service
	log logger.Logger
}

// userResponse representa un usuario devuelto por la API.
type userResponse struct {
	ID        string          `json:"id"`
	Email     string          `json:"email"`
	Name      string          `json:"name"`
	Phone     string          `json:"phone"`
	Address   string          `json:"address"`
	Role      clinic.RoleName `json:"role"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

type assignRoleRequest struct {
	Role string `json:"role"`
}

// departureResponse resume la salida de un veterinario.
type departureResponse struct {
	VeterinarianID string            `json:"veterinarian_id"`
	Reassigned     map[string]string `json:"reassigned"`
	Cancelled      []string          `json:"cancelled"`
}

type roleChangeResponse struct {
	UserID        string             `json:"user_id"`
	From          clinic.RoleName    `json:"from"`
	To            clinic.RoleName    `json:"to"`
	Departure     *departureResponse `json:"departure,omitempty"`
	ClientRemoved bool               `json:"client_removed"`
	OrphanedPets  int                `json:"orphaned_pets"`
}

func (h *handler) me(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	u, err := h.svc.GetUser(r.Context(), req, req.UserID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, toUserResponse(u))
}

func (h *handler) roles(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListRoles(r.Context())
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	out := make([]clinic.RoleName, 0, len(items))
	for _, role := range items {
		out = append(out, role.Name)
	}
	respond.JSON(w, http.StatusOK, out)
}

// list godoc
// @Summary Listar usuarios
// @Description Solo Administrador. Ordenados por email.
// @Tags users
// @Produce json
// @Success 200 {array} userResponse
// @Failure 403 {object} respond.ErrorBody
// @Router /users [get]
func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var items []clinic.User
	err := clinic.RetryOnce(func() error {
		var err error
		items, err = h.svc.ListUsers(r.Context(), req)
		return err
	})
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	out := make([]userResponse, 0, len(items))
	for _, u := range items {
		out = append(out, toUserResponse(u))
	}
	respond.JSON(w, http.StatusOK, out)
}

// create godoc
// @Summary Crear usuario
// @Description Solo Administrador. Crea el perfil que corresponde al rol.
// @Tags users
// @Accept json
// @Produce json
// @Param payload body NewUserInput true "Datos del usuario"
// @Success 201 {object} userResponse
// @Failure 422 {object} respond.ErrorBody
// @Router /users [post]
func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var in NewUserInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.Message(w, http.StatusBadRequest, "invalid json")
		return
	}

	u, err := h.svc.CreateUser(r.Context(), req, in)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusCreated, toUserResponse(u))
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	u, err := h.svc.GetUser(r.Context(), req, chi.URLParam(r, "userID"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, toUserResponse(u))
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var in ProfileInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		respond.Message(w, http.StatusBadRequest, "invalid json")
		return
	}

	u, err := h.svc.UpdateUser(r.Context(), req, chi.URLParam(r, "userID"), in)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, toUserResponse(u))
}

// delete godoc
// @Summary Borrar usuario
// @Description Solo Administrador, nunca a sí mismo. Si es veterinario, reasigna o cancela sus turnos futuros.
// @Tags users
// @Param userID path string true "ID del usuario"
// @Success 204
// @Failure 403 {object} respond.ErrorBody
// @Failure 404 {object} respond.ErrorBody
// @Router /users/{userID} [delete]
func (h *handler) delete(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if _, err := h.svc.DeleteUser(r.Context(), req, chi.URLParam(r, "userID")); err != nil {
		respond.Error(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// assignRole godoc
// @Summary Cambiar rol
// @Description Solo Administrador, nunca el propio. Ajusta perfiles y corre la salida del veterinario si corresponde.
// @Tags users
// @Accept json
// @Produce json
// @Param userID path string true "ID del usuario"
// @Param payload body assignRoleRequest true "Rol nuevo (Administrador | Veterinario | Cliente)"
// @Success 200 {object} roleChangeResponse
// @Failure 400 {object} respond.ErrorBody "rol inválido"
// @Failure 403 {object} respond.ErrorBody
// @Router /users/{userID}/role [put]
func (h *handler) assignRole(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var body assignRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respond.Message(w, http.StatusBadRequest, "invalid json")
		return
	}

	change, err := h.svc.AssignRole(r.Context(), chi.URLParam(r, "userID"), body.Role, req.UserID)
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}

	out := roleChangeResponse{
		UserID:        change.UserID,
		From:          change.From,
		To:            change.To,
		ClientRemoved: change.ClientRemoved,
		OrphanedPets:  change.OrphanedPets,
	}
	if change.Departure != nil {
		d := toDepartureResponse(*change.Departure)
		out.Departure = &d
	}
	respond.JSON(w, http.StatusOK, out)
}

func (h *handler) retire(w http.ResponseWriter, r *http.Request) {
	req, ok := middleware.GetRequester(r.Context())
	if !ok {
		respond.Message(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	dep, err := h.svc.RetireVeterinarian(r.Context(), req, chi.URLParam(r, "veterinarianID"))
	if err != nil {
		respond.Error(w, h.log, err)
		return
	}
	respond.JSON(w, http.StatusOK, toDepartureResponse(dep))
}

func toUserResponse(u clinic.User) userResponse {
	return userResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Phone:     u.Phone,
		Address:   u.Address,
		Role:      u.Role.Name,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func toDepartureResponse(d DepartureResult) departureResponse {
	cancelled := append([]string{}, d.Cancelled...)
	sort.Strings(cancelled)
	return departureResponse{
		VeterinarianID: d.VeterinarianID,
		Reassigned:     d.Reassigned,
		Cancelled:      cancelled,
	}
}
