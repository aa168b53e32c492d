package collection

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// routes builds the collection router. Paths are relative to the resource:
//
//	GET    /      list documents
//	POST   /      create a document
//	GET    /{id}  read a document
//	PUT    /{id}  merge fields into a document
//	DELETE /{id}  delete a document
func (c *Collection) routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	r.Get("/", c.handleList)
	r.Post("/", c.handleCreate)
	r.Get("/{id}", c.handleGet)
	r.Put("/{id}", c.handleUpdate)
	r.Patch("/{id}", c.handleUpdate)
	r.Delete("/{id}", c.handleDelete)
	return r
}

// ServeHTTP serves the collection.
func (c *Collection) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c.router.ServeHTTP(w, r)
}

func (c *Collection) handleList(w http.ResponseWriter, r *http.Request) {
	docs, err := c.List(r.Context())
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (c *Collection) handleCreate(w http.ResponseWriter, r *http.Request) {
	doc, ok := readDocument(w, r)
	if !ok {
		return
	}
	created, err := c.Create(r.Context(), doc)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (c *Collection) handleGet(w http.ResponseWriter, r *http.Request) {
	doc, err := c.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (c *Collection) handleUpdate(w http.ResponseWriter, r *http.Request) {
	changes, ok := readDocument(w, r)
	if !ok {
		return
	}
	doc, err := c.Update(r.Context(), chi.URLParam(r, "id"), changes)
	if err != nil {
		c.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (c *Collection) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := c.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		c.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *Collection) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDocumentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		c.logger.Error("Collection request failed", "resource", c.Name(), "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

const maxDocumentSize = 1 << 20

func readDocument(w http.ResponseWriter, r *http.Request) (Document, bool) {
	var doc Document
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxDocumentSize))
	if err := dec.Decode(&doc); err != nil || doc == nil {
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
		return nil, false
	}
	return doc, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
