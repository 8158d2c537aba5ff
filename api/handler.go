// Package api exposes the dictionary over HTTP: model administration for the
// tenant named in the X-Tenant-Domain header, and class queries against its
// view.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/c360studio/semdict/dictionary"
	"github.com/c360studio/semdict/qname"
	"github.com/c360studio/semdict/schema"
	"github.com/c360studio/semdict/storage"
	"github.com/c360studio/semdict/tenant"
)

// maxModelSize bounds the size of an uploaded model document.
const maxModelSize = 4 << 20

// Dictionary is the part of *dictionary.Dictionary the handler uses.
type Dictionary interface {
	View(ctx context.Context) (*dictionary.View, error)
	State(ctx context.Context) dictionary.State
	ModelName(ctx context.Context, raw *schema.Model) (qname.QName, error)
	PutModel(ctx context.Context, raw *schema.Model) (qname.QName, error)
	RemoveModel(ctx context.Context, name qname.QName) error
	ValidateModel(ctx context.Context, raw *schema.Model) error
	DiffModel(ctx context.Context, raw *schema.Model) ([]dictionary.ModelDiff, error)
	Reset(ctx context.Context) error
}

// Store persists raw models. *storage.ModelStore satisfies it.
type Store interface {
	Get(ctx context.Context, tenant string, name qname.QName) (*schema.Model, error)
	Put(ctx context.Context, tenant string, name qname.QName, m *schema.Model) (uint64, error)
	Delete(ctx context.Context, tenant string, name qname.QName) error
}

// Handler serves the dictionary API.
type Handler struct {
	dict   Dictionary
	store  Store
	logger *slog.Logger
}

// NewHandler creates a handler. store may be nil, in which case model
// changes live only until the next rebuild.
func NewHandler(dict Dictionary, store Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{dict: dict, store: store, logger: logger}
}

// RegisterHTTPHandlers registers the API routes. The prefix should include
// the trailing slash (e.g., "/api/dictionary/").
func (h *Handler) RegisterHTTPHandlers(prefix string, mux *http.ServeMux) {
	mux.HandleFunc(prefix+"models", h.handleModels)
	mux.HandleFunc(prefix+"models/", h.withName(prefix+"models/", h.handleModel))
	mux.HandleFunc(prefix+"validate", h.handleValidate)
	mux.HandleFunc(prefix+"diff", h.handleDiff)
	mux.HandleFunc(prefix+"classes", h.handleClasses)
	mux.HandleFunc(prefix+"classes/", h.withName(prefix+"classes/", h.handleClass))
	mux.HandleFunc(prefix+"state", h.handleState)
	mux.HandleFunc(prefix+"reset", h.handleReset)
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Error   string      `json:"error"`
	Message string      `json:"message"`
	Diffs   []DiffEntry `json:"diffs,omitempty"`
}

// ModelSummary describes one model visible to the tenant.
type ModelSummary struct {
	Name        string `json:"name"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Version     string `json:"version,omitempty"`
	Inherited   bool   `json:"inherited"`
}

// ModelResponse is the JSON response for GET models/{name}.
type ModelResponse struct {
	ModelSummary
	Namespaces  []string `json:"namespaces"`
	Imports     []string `json:"imports,omitempty"`
	Types       []string `json:"types,omitempty"`
	Aspects     []string `json:"aspects,omitempty"`
	Constraints []string `json:"constraints,omitempty"`
	DataTypes   []string `json:"data_types,omitempty"`
	Source      string   `json:"source"`
}

// PutResponse is the JSON response for a stored model.
type PutResponse struct {
	Name     string `json:"name"`
	Revision uint64 `json:"revision,omitempty"`
}

// ValidateResponse is the JSON response for POST validate.
type ValidateResponse struct {
	Name  string `json:"name"`
	Valid bool   `json:"valid"`
}

// DiffEntry is one classified change.
type DiffEntry struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Diff     string `json:"diff"`
	Class    string `json:"class,omitempty"`
	Breaking bool   `json:"breaking"`
}

// DiffResponse is the JSON response for POST diff.
type DiffResponse struct {
	Diffs []DiffEntry `json:"diffs"`
}

// ClassResponse describes a type or aspect.
type ClassResponse struct {
	Name             string             `json:"name"`
	Model            string             `json:"model"`
	Kind             string             `json:"kind"`
	Title            string             `json:"title,omitempty"`
	Description      string             `json:"description,omitempty"`
	Parent           string             `json:"parent,omitempty"`
	Container        bool               `json:"container"`
	MandatoryAspects []string           `json:"mandatory_aspects,omitempty"`
	Properties       []PropertyResponse `json:"properties,omitempty"`
	Associations     []string           `json:"associations,omitempty"`
}

// PropertyResponse describes a property as seen on a class.
type PropertyResponse struct {
	Name              string   `json:"name"`
	DataType          string   `json:"data_type"`
	ContainerClass    string   `json:"container_class"`
	Multiple          bool     `json:"multiple"`
	Mandatory         bool     `json:"mandatory"`
	MandatoryEnforced bool     `json:"mandatory_enforced"`
	Protected         bool     `json:"protected"`
	Override          bool     `json:"override"`
	Default           string   `json:"default,omitempty"`
	Constraints       []string `json:"constraints,omitempty"`
}

// NamesResponse lists element names.
type NamesResponse struct {
	Names []string `json:"names"`
}

// StateResponse reports the lifecycle state of a tenant.
type StateResponse struct {
	Tenant string `json:"tenant"`
	State  string `json:"state"`
}

// handleModels handles GET models (list) and POST models (put).
func (h *Handler) handleModels(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleListModels(w, r)
	case http.MethodPost, http.MethodPut:
		h.handlePutModel(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) handleListModels(w http.ResponseWriter, r *http.Request) {
	v, err := h.dict.View(tenant.FromRequest(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	ns := v.Namespaces()
	models := v.Models()
	out := make([]ModelSummary, 0, len(models))
	for _, m := range models {
		out = append(out, summarize(v, m, ns))
	}
	writeJSON(w, http.StatusOK, out)
}

// handlePutModel validates, stores and publishes the uploaded model. The
// store is rolled back when publishing fails.
func (h *Handler) handlePutModel(w http.ResponseWriter, r *http.Request) {
	ctx := tenant.FromRequest(r)
	domain := tenant.Domain(ctx)

	raw, ok := readModel(w, r)
	if !ok {
		return
	}
	name, err := h.dict.ModelName(ctx, raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.dict.ValidateModel(ctx, raw); err != nil {
		h.writeError(w, err)
		return
	}

	var rev uint64
	var prev *schema.Model
	if h.store != nil {
		prev, err = h.store.Get(ctx, domain, name)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, err)
			return
		}
		if rev, err = h.store.Put(ctx, domain, name, raw); err != nil {
			h.writeError(w, err)
			return
		}
	}

	if _, err := h.dict.PutModel(ctx, raw); err != nil {
		if h.store != nil {
			h.rollback(ctx, domain, name, prev)
		}
		h.writeError(w, err)
		return
	}

	h.logger.Info("Model stored", "tenant", tenant.Label(domain), "model", name.String(), "revision", rev)
	writeJSON(w, http.StatusOK, PutResponse{Name: h.render(ctx, name), Revision: rev})
}

func (h *Handler) rollback(ctx context.Context, domain string, name qname.QName, prev *schema.Model) {
	var err error
	if prev != nil {
		_, err = h.store.Put(ctx, domain, name, prev)
	} else {
		err = h.store.Delete(ctx, domain, name)
	}
	if err != nil {
		h.logger.Warn("Failed to roll back stored model", "tenant", tenant.Label(domain), "model", name.String(), "error", err)
	}
}

// handleModel handles GET and DELETE models/{name}. A delete removes the
// stored copy first and restores it when the dictionary refuses the removal.
func (h *Handler) handleModel(w http.ResponseWriter, r *http.Request, v *dictionary.View, name qname.QName, sub string) {
	if sub != "" {
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown resource: "+sub)
		return
	}
	switch r.Method {
	case http.MethodGet:
		m, err := v.Model(name)
		if err != nil {
			h.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, describeModel(v, m))
	case http.MethodDelete:
		ctx := tenant.FromRequest(r)
		domain := tenant.Domain(ctx)
		var prev *schema.Model
		if h.store != nil {
			stored, err := h.store.Get(ctx, domain, name)
			if err != nil && !errors.Is(err, storage.ErrNotFound) {
				h.writeError(w, err)
				return
			}
			if stored != nil {
				if err := h.store.Delete(ctx, domain, name); err != nil {
					h.writeError(w, err)
					return
				}
				prev = stored
			}
		}
		if err := h.dict.RemoveModel(ctx, name); err != nil {
			if prev != nil {
				h.rollback(ctx, domain, name, prev)
			}
			h.writeError(w, err)
			return
		}
		h.logger.Info("Model deleted", "tenant", tenant.Label(domain), "model", name.String())
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleValidate handles POST validate.
func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := tenant.FromRequest(r)
	raw, ok := readModel(w, r)
	if !ok {
		return
	}
	name, err := h.dict.ModelName(ctx, raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.dict.ValidateModel(ctx, raw); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Name: h.render(ctx, name), Valid: true})
}

// handleDiff handles POST diff. Unchanged elements are omitted.
func (h *Handler) handleDiff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := tenant.FromRequest(r)
	raw, ok := readModel(w, r)
	if !ok {
		return
	}
	diffs, err := h.dict.DiffModel(ctx, raw)
	if err != nil {
		h.writeError(w, err)
		return
	}
	v, err := h.dict.View(ctx)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DiffResponse{Diffs: diffEntries(v, diffs, true)})
}

// handleClasses handles GET classes?kind=type|aspect.
func (h *Handler) handleClasses(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	v, err := h.dict.View(tenant.FromRequest(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	var names []qname.QName
	switch kind := r.URL.Query().Get("kind"); kind {
	case "", "type":
		names = v.AllTypes()
	case "aspect":
		names = v.AllAspects()
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_kind", "kind must be type or aspect")
		return
	}
	writeJSON(w, http.StatusOK, NamesResponse{Names: renderAll(v, names)})
}

// handleClass handles GET classes/{name}, classes/{name}/subclasses and
// classes/{name}/properties.
func (h *Handler) handleClass(w http.ResponseWriter, r *http.Request, v *dictionary.View, name qname.QName, sub string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	class, ok := v.Class(name)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "not_found", "Class not found: "+name.String())
		return
	}

	switch sub {
	case "":
		writeJSON(w, http.StatusOK, describeClass(v, class))
	case "subclasses":
		follow := true
		if s := r.URL.Query().Get("follow"); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "invalid_follow", "follow must be a boolean")
				return
			}
			follow = b
		}
		var subs []qname.QName
		if class.IsAspect {
			subs = v.SubAspects(name, follow)
		} else {
			subs = v.SubTypes(name, follow)
		}
		writeJSON(w, http.StatusOK, NamesResponse{Names: renderAll(v, subs)})
	case "properties":
		writeJSON(w, http.StatusOK, describeProperties(v, class))
	default:
		writeJSONError(w, http.StatusNotFound, "not_found", "Unknown resource: "+sub)
	}
}

// handleState handles GET state.
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := tenant.FromRequest(r)
	writeJSON(w, http.StatusOK, StateResponse{
		Tenant: tenant.Label(tenant.Domain(ctx)),
		State:  h.dict.State(ctx).String(),
	})
}

// handleReset handles POST reset: the tenant is destroyed and rebuilt.
func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx := tenant.FromRequest(r)
	if err := h.dict.Reset(ctx); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StateResponse{
		Tenant: tenant.Label(tenant.Domain(ctx)),
		State:  h.dict.State(ctx).String(),
	})
}

// withName resolves the first path segment after prefix against the
// tenant's namespaces. Segments are unescaped individually so {uri}local
// names may be sent with an encoded slash.
func (h *Handler) withName(prefix string, next func(http.ResponseWriter, *http.Request, *dictionary.View, qname.QName, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.EscapedPath()
		if !strings.HasPrefix(path, prefix) {
			http.Error(w, "Invalid path", http.StatusBadRequest)
			return
		}
		first, sub, _ := strings.Cut(path[len(prefix):], "/")
		raw, err := url.PathUnescape(first)
		if err != nil || raw == "" {
			writeJSONError(w, http.StatusBadRequest, "name_required", "Element name required")
			return
		}

		v, err := h.dict.View(tenant.FromRequest(r))
		if err != nil {
			h.writeError(w, err)
			return
		}
		name, err := qname.Parse(raw, v.Namespaces())
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid_name", err.Error())
			return
		}
		next(w, r, v, name, sub)
	}
}

// readModel parses the YAML model in the request body.
func readModel(w http.ResponseWriter, r *http.Request) (*schema.Model, bool) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxModelSize+1))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "read_error", "Failed to read request body")
		return nil, false
	}
	if len(data) > maxModelSize {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "too_large", "Model document too large")
		return nil, false
	}
	raw, err := schema.Parse(data)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "parse_error", err.Error())
		return nil, false
	}
	return raw, true
}

func (h *Handler) render(ctx context.Context, name qname.QName) string {
	v, err := h.dict.View(ctx)
	if err != nil {
		return name.String()
	}
	return name.PrefixString(v.Namespaces())
}

func summarize(v *dictionary.View, m *dictionary.CompiledModel, ns qname.PrefixResolver) ModelSummary {
	def := m.Definition()
	inherited, _ := v.IsModelInherited(m.Name())
	return ModelSummary{
		Name:        m.Name().PrefixString(ns),
		Title:       def.Title,
		Description: def.Description,
		Version:     def.Version,
		Inherited:   inherited,
	}
}

func describeModel(v *dictionary.View, m *dictionary.CompiledModel) ModelResponse {
	ns := v.Namespaces()
	resp := ModelResponse{ModelSummary: summarize(v, m, ns)}
	for _, n := range m.Namespaces() {
		resp.Namespaces = append(resp.Namespaces, n.Prefix+"="+n.URI)
	}
	for _, n := range m.Imports() {
		resp.Imports = append(resp.Imports, n.Prefix+"="+n.URI)
	}
	for _, c := range m.Types() {
		resp.Types = append(resp.Types, c.Name.PrefixString(ns))
	}
	for _, c := range m.Aspects() {
		resp.Aspects = append(resp.Aspects, c.Name.PrefixString(ns))
	}
	for _, c := range m.Constraints() {
		resp.Constraints = append(resp.Constraints, c.Name.PrefixString(ns))
	}
	for _, dt := range m.DataTypes() {
		resp.DataTypes = append(resp.DataTypes, dt.Name.PrefixString(ns))
	}
	if data, err := schema.Marshal(m.Raw()); err == nil {
		resp.Source = string(data)
	}
	return resp
}

func describeClass(v *dictionary.View, c *dictionary.ClassDefinition) ClassResponse {
	ns := v.Namespaces()
	resp := ClassResponse{
		Name:             c.Name.PrefixString(ns),
		Model:            c.Model.PrefixString(ns),
		Kind:             strings.ToLower(string(c.Kind())),
		Title:            c.Title,
		Description:      c.Description,
		Container:        c.IsContainer(),
		MandatoryAspects: renderAll(v, c.MandatoryAspects),
		Properties:       describeProperties(v, c),
	}
	if c.HasParent() {
		resp.Parent = c.Parent.PrefixString(ns)
	}
	assocs := make([]qname.QName, 0, len(c.Associations))
	for n := range c.Associations {
		assocs = append(assocs, n)
	}
	sort.Slice(assocs, func(i, j int) bool { return qname.Less(assocs[i], assocs[j]) })
	resp.Associations = renderAll(v, assocs)
	return resp
}

func describeProperties(v *dictionary.View, c *dictionary.ClassDefinition) []PropertyResponse {
	ns := v.Namespaces()
	names := c.PropertyNames()
	out := make([]PropertyResponse, 0, len(names))
	for _, n := range names {
		p := c.Properties[n]
		pr := PropertyResponse{
			Name:              p.Name.PrefixString(ns),
			DataType:          p.DataType.PrefixString(ns),
			ContainerClass:    p.ContainerClass.PrefixString(ns),
			Multiple:          p.Multiple,
			Mandatory:         p.Mandatory,
			MandatoryEnforced: p.MandatoryEnforced,
			Protected:         p.Protected,
			Override:          p.Override,
			Default:           p.Default,
		}
		for _, con := range p.Constraints {
			pr.Constraints = append(pr.Constraints, constraintName(con, ns))
		}
		out = append(out, pr)
	}
	return out
}

// constraintName names a referencing constraint after its target, since
// inline references only carry a generated name.
func constraintName(con *dictionary.ConstraintDefinition, ns qname.PrefixResolver) string {
	if !con.Ref.IsZero() {
		return con.Ref.PrefixString(ns)
	}
	return con.Name.PrefixString(ns)
}

func diffEntries(v *dictionary.View, diffs []dictionary.ModelDiff, changedOnly bool) []DiffEntry {
	var ns qname.PrefixResolver
	if v != nil {
		ns = v.Namespaces()
	}
	out := make([]DiffEntry, 0, len(diffs))
	for _, d := range diffs {
		if changedOnly && d.Diff == dictionary.DiffUnchanged {
			continue
		}
		e := DiffEntry{
			Name:     d.Name.PrefixString(ns),
			Kind:     string(d.Kind),
			Diff:     string(d.Diff),
			Breaking: d.Breaking(),
		}
		if !d.Class.IsZero() {
			e.Class = d.Class.PrefixString(ns)
		}
		out = append(out, e)
	}
	return out
}

func renderAll(v *dictionary.View, names []qname.QName) []string {
	ns := v.Namespaces()
	out := make([]string, 0, len(names))
	for _, n := range names {
		out = append(out, n.PrefixString(ns))
	}
	return out
}

// writeError maps err to a status code and writes it as JSON.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: code, Message: err.Error()}

	var de *dictionary.Error
	if errors.As(err, &de) && len(de.Diffs) > 0 {
		resp.Diffs = diffEntries(nil, de.Diffs, true)
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Dictionary request failed", "error", err)
	}
	writeJSON(w, status, resp)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, dictionary.ErrModelNotFound), errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, dictionary.ErrIncompatibleModelUpdate):
		return http.StatusConflict, "incompatible_update"
	case errors.Is(err, dictionary.ErrModelInUse):
		return http.StatusConflict, "model_in_use"
	case errors.Is(err, dictionary.ErrNamespaceConflict):
		return http.StatusConflict, "namespace_conflict"
	case errors.Is(err, dictionary.ErrDependentModel):
		return http.StatusConflict, "dependent_model"
	case errors.Is(err, dictionary.ErrBuildInProgress):
		return http.StatusServiceUnavailable, "build_in_progress"
	}
	var de *dictionary.Error
	if errors.As(err, &de) && de.Op != "init" {
		return http.StatusUnprocessableEntity, "invalid_model"
	}
	if errors.Is(err, qname.ErrUnresolvedPrefix) || errors.Is(err, qname.ErrInvalid) {
		return http.StatusUnprocessableEntity, "invalid_model"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// writeJSONError writes a JSON error response.
func writeJSONError(w http.ResponseWriter, status int, errorCode, message string) {
	writeJSON(w, status, ErrorResponse{Error: errorCode, Message: message})
}
