// Package httpapi exposes the ledger over REST.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	app "github.com/cafizzio/ledger/internal/app"
	"github.com/cafizzio/ledger/internal/app/services/clients"
	ledgersvc "github.com/cafizzio/ledger/internal/app/services/ledger"
	"github.com/cafizzio/ledger/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application
}

// NewHandler returns a router exposing the core REST API.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application}

	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)

	r.HandleFunc("/products", h.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/products", h.addProduct).Methods(http.MethodPost)
	r.HandleFunc("/products/{id:[0-9]+}", h.updateProduct).Methods(http.MethodPatch)

	r.HandleFunc("/clients", h.listClients).Methods(http.MethodGet)
	r.HandleFunc("/clients", h.addClient).Methods(http.MethodPost)
	r.HandleFunc("/clients/search", h.searchClients).Methods(http.MethodGet)
	r.HandleFunc("/clients/{id:[0-9]+}", h.getClient).Methods(http.MethodGet)
	r.HandleFunc("/clients/{id:[0-9]+}", h.updateClient).Methods(http.MethodPatch)
	r.HandleFunc("/clients/{id:[0-9]+}/history", h.clientHistory).Methods(http.MethodGet)
	r.HandleFunc("/clients/{id:[0-9]+}/purchase", h.purchase).Methods(http.MethodPost)

	r.HandleFunc("/credits", h.adjustCredits).Methods(http.MethodPost)

	return r
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Products --------------------------------------------------------------------

func (h *handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.app.Catalog.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *handler) addProduct(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := h.app.Catalog.AddProduct(r.Context(), payload.Name, payload.Price)
	if err != nil {
		writeError(w, errorStatus(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusCreated, product)
}

func (h *handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)

	var payload struct {
		Name  string  `json:"name"`
		Price float64 `json:"price"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	product, err := h.app.Catalog.UpdateProduct(r.Context(), id, payload.Name, payload.Price)
	if err != nil {
		writeError(w, errorStatus(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, product)
}

// Clients ---------------------------------------------------------------------

func (h *handler) listClients(w http.ResponseWriter, r *http.Request) {
	result, err := h.app.Clients.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handler) addClient(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code    string  `json:"code"`
		Name    string  `json:"name"`
		Email   string  `json:"email"`
		Phone   string  `json:"phone"`
		Credits float64 `json:"credits"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	created, err := h.app.Clients.AddClient(r.Context(), payload.Code, payload.Name, payload.Email, payload.Phone, payload.Credits)
	if err != nil {
		writeError(w, errorStatus(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *handler) getClient(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Clients.GetClient(r.Context(), pathID(r))
	if err != nil {
		writeError(w, errorStatus(err, http.StatusInternalServerError), err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (h *handler) updateClient(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code  string `json:"code"`
		Name  string `json:"name"`
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Clients.UpdateClientInfo(r.Context(), pathID(r), payload.Code, payload.Name, payload.Email, payload.Phone)
	if err != nil {
		writeError(w, errorStatus(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *handler) searchClients(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	name := r.URL.Query().Get("name")

	switch {
	case code != "":
		c, err := h.app.Clients.FindByCode(r.Context(), code)
		if err != nil {
			writeError(w, errorStatus(err, http.StatusBadRequest), err)
			return
		}
		writeJSON(w, http.StatusOK, []any{c})
	case name != "":
		result, err := h.app.Clients.FindByName(r.Context(), name)
		if err != nil {
			writeError(w, errorStatus(err, http.StatusBadRequest), err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	default:
		writeError(w, http.StatusBadRequest, errors.New("code or name query parameter is required"))
	}
}

func (h *handler) clientHistory(w http.ResponseWriter, r *http.Request) {
	c, err := h.app.Clients.GetClient(r.Context(), pathID(r))
	if err != nil {
		writeError(w, errorStatus(err, http.StatusInternalServerError), err)
		return
	}
	writeJSON(w, http.StatusOK, c.History)
}

func (h *handler) adjustCredits(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Code   string  `json:"code"`
		Amount float64 `json:"amount"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	updated, err := h.app.Clients.AdjustCredits(r.Context(), payload.Code, payload.Amount)
	if err != nil {
		status := errorStatus(err, http.StatusBadRequest)
		if errors.Is(err, clients.ErrCreditsBelowZero) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// Purchases -------------------------------------------------------------------

func (h *handler) purchase(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Cart map[string]int `json:"cart"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	receipt, err := h.app.Ledger.Purchase(r.Context(), pathID(r), payload.Cart)
	if err != nil {
		var funds *ledgersvc.InsufficientFundsError
		if errors.As(err, &funds) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":      "insufficient_funds",
				"total_cost": funds.TotalCost,
				"available":  funds.Available,
			})
			return
		}
		writeError(w, errorStatus(err, http.StatusBadRequest), err)
		return
	}
	writeJSON(w, http.StatusOK, receipt)
}

// Helpers ---------------------------------------------------------------------

// pathID reads the numeric {id} route variable. Routes constrain it to
// digits, so parsing cannot fail for matched requests.
func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

// errorStatus maps domain errors onto HTTP statuses.
func errorStatus(err error, fallback int) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrPersistence):
		return http.StatusInternalServerError
	default:
		return fallback
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
