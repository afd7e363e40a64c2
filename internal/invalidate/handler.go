package invalidate

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

// Handler exposes invalidation over HTTP for operators and the write
// path: PURGE /<resource> drops the resource's cached reads.
type Handler struct {
	coordinator *Coordinator
	log         *logrus.Logger
}

func NewHandler(c *Coordinator, log *logrus.Logger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{coordinator: c, log: log}
}

type purgePayload struct {
	Resource string `json:"resource"`
}

type purgeResponse struct {
	Resource string `json:"resource"`
	Deleted  int    `json:"deleted"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resource, err := readResource(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	deleted, err := h.coordinator.InvalidateResource(r.Context(), resource)
	if err != nil {
		if errors.Is(err, ErrUnknownResource) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}

	h.log.WithFields(logrus.Fields{"resource": resource, "deleted": deleted}).Info("purged resource")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(purgeResponse{Resource: resource, Deleted: deleted})
}

func readResource(r *http.Request) (string, error) {
	if v := strings.Trim(r.URL.Path, "/"); v != "" {
		return v, nil
	}
	if v := r.URL.Query().Get("resource"); v != "" {
		return v, nil
	}
	if r.Body != nil {
		defer r.Body.Close()
		var payload purgePayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err == nil && payload.Resource != "" {
			return payload.Resource, nil
		}
	}
	return "", errors.New("resource required")
}
