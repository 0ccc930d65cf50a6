package pets

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

func RegisterRoutes(r chi.Router, svc *Service, log logger.Logger) {
	r.Route("/pets", func(pr chi.Router) {
		pr.Get("/", listPetsHandler(svc, log))
		pr.Get("/{petID}", getPetHandler(svc, log))

		// Alta/edición/baja: solo Administrador
		pr.Post("/", createPetHandler(svc, log))
		pr.Put("/{petID}", updatePetHandler(svc, log))
		pr.Delete("/{petID}", deletePetHandler(svc, log))
	})
}

type petRequest struct {
	ClientID  string `json:"client_id"`
	Name      string `json:"name"`
	Species   string `json:"species"`
	Breed     string `json:"breed"`
	BirthDate string `json:"birth_date"` // YYYY-MM-DD
}

type petResponse struct {
	ID        string    `json:"id"`
	ClientID  string    `json:"client_id"`
	Name      string    `json:"name"`
	Species   string    `json:"species"`
	Breed     string    `json:"breed"`
	BirthDate string    `json:"birth_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// listPetsHandler godoc
// @Summary Listar mascotas
// @Description Administrador y Veterinario ven todas; Cliente solo las propias. Orden por nombre.
// @Tags pets
// @Produce json
// @Success 200 {array} petResponse
// @Router /pets [get]
func listPetsHandler(svc *Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := middleware.GetRequester(r.Context())
		if !ok {
			respond.Message(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		var items []clinic.Pet
		err := clinic.RetryOnce(func() error {
			var err error
			items, err = svc.List(r.Context(), req)
			return err
		})
		if err != nil {
			respond.Error(w, log, err)
			return
		}

		out := make([]petResponse, 0, len(items))
		for _, p := range items {
			out = append(out, toPetResponse(p))
		}
		respond.JSON(w, http.StatusOK, out)
	}
}

func getPetHandler(svc *Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := middleware.GetRequester(r.Context())
		if !ok {
			respond.Message(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		p, err := svc.Get(r.Context(), req, chi.URLParam(r, "petID"))
		if err != nil {
			respond.Error(w, log, err)
			return
		}
		respond.JSON(w, http.StatusOK, toPetResponse(p))
	}
}

// createPetHandler godoc
// @Summary Registrar mascota
// @Tags pets
// @Accept json
// @Produce json
// @Param payload body petRequest true "Datos de la mascota"
// @Success 201 {object} petResponse
// @Failure 422 {object} respond.ErrorBody
// @Router /pets [post]
func createPetHandler(svc *Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := middleware.GetRequester(r.Context())
		if !ok {
			respond.Message(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		in, err := decodePet(r)
		if err != nil {
			respond.Error(w, log, err)
			return
		}

		p, err := svc.Create(r.Context(), req, in)
		if err != nil {
			respond.Error(w, log, err)
			return
		}
		respond.JSON(w, http.StatusCreated, toPetResponse(p))
	}
}

func updatePetHandler(svc *Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := middleware.GetRequester(r.Context())
		if !ok {
			respond.Message(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		in, err := decodePet(r)
		if err != nil {
			respond.Error(w, log, err)
			return
		}

		p, err := svc.Update(r.Context(), req, chi.URLParam(r, "petID"), in)
		if err != nil {
			respond.Error(w, log, err)
			return
		}
		respond.JSON(w, http.StatusOK, toPetResponse(p))
	}
}

// deletePetHandler godoc
// @Summary Borrar mascota
// @Description Borra también todos sus turnos.
// @Tags pets
// @Param petID path string true "ID de la mascota"
// @Success 204
// @Router /pets/{petID} [delete]
func deletePetHandler(svc *Service, log logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := middleware.GetRequester(r.Context())
		if !ok {
			respond.Message(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		if _, err := svc.Delete(r.Context(), req, chi.URLParam(r, "petID")); err != nil {
			respond.Error(w, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func decodePet(r *http.Request) (Input, error) {
	var body petRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var v clinic.Validation
		v.Add("body", "json", "invalid json")
		return Input{}, v.Err()
	}

	in := Input{
		ClientID: body.ClientID,
		Name:     body.Name,
		Species:  body.Species,
		Breed:    body.Breed,
	}
	if s := strings.TrimSpace(body.BirthDate); s != "" {
		t, err := time.Parse("2006-01-02", s)
		if err != nil {
			var v clinic.Validation
			v.Add("birth_date", "format", "must be YYYY-MM-DD")
			return Input{}, v.Err()
		}
		in.BirthDate = t
	}
	return in, nil
}

func toPetResponse(p clinic.Pet) petResponse {
	out := petResponse{
		ID:        p.ID,
		ClientID:  p.ClientID,
		Name:      p.Name,
		Species:   p.Species,
		Breed:     p.Breed,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
	if !p.BirthDate.IsZero() {
		out.BirthDate = p.BirthDate.Format("2006-01-02")
	}
	return out
}
