package controllers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/form"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/feedback-hub/modules/core/domain/role"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/domain/hierarchy"
	"github.com/iota-uz/feedback-hub/modules/hierarchy/services"
	"github.com/iota-uz/feedback-hub/pkg/application"
	"github.com/iota-uz/feedback-hub/pkg/authz"
	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/constants"
	"github.com/iota-uz/feedback-hub/pkg/httpapi"
	"github.com/iota-uz/feedback-hub/pkg/middleware"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type HierarchyAPIController struct {
	basePath     string
	service      *services.HierarchyService
	validator    *services.HierarchyValidator
	authz        *authz.Service
	crossOrgRole string
	decoder      *form.Decoder
}

// NewHierarchyAPIController serves the hierarchy endpoints. Actors holding
// crossOrgRole may address any organization; everyone else only their own.
func NewHierarchyAPIController(
	service *services.HierarchyService,
	validator *services.HierarchyValidator,
	authzSvc *authz.Service,
	crossOrgRole string,
) application.Controller {
	decoder := form.NewDecoder()
	decoder.RegisterCustomTypeFunc(func(vals []string) (interface{}, error) {
		return uuid.Parse(vals[0])
	}, uuid.UUID{})

	return &HierarchyAPIController{
		basePath:     "/hierarchy",
		service:      service,
		validator:    validator,
		authz:        authzSvc,
		crossOrgRole: crossOrgRole,
		decoder:      decoder,
	}
}

func (c *HierarchyAPIController) Key() string {
	return c.basePath
}

func (c *HierarchyAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.basePath).Subrouter()
	api.Use(middleware.RequireActor())

	api.HandleFunc("/tree/{organizationId}", c.GetTree).Methods(http.MethodGet)
	api.HandleFunc("/export/{organizationId}", c.Export).Methods(http.MethodGet)
	api.HandleFunc("/validate/{organizationId}", c.Validate).Methods(http.MethodGet)
	api.HandleFunc("/direct-reports/{managerId}", c.GetDirectReports).Methods(http.MethodGet)
	api.HandleFunc("/manager-chain/{employeeId}", c.GetManagerChain).Methods(http.MethodGet)
	api.HandleFunc("/search", c.Search).Methods(http.MethodGet)
	api.HandleFunc("/bulk", c.BulkUpdate).Methods(http.MethodPost)
	api.HandleFunc("", c.Create).Methods(http.MethodPost)
	api.HandleFunc("/{id}", c.Update).Methods(http.MethodPut)
	api.HandleFunc("/{id}", c.Delete).Methods(http.MethodDelete)
}

type createRequest struct {
	OrganizationID uuid.UUID  `json:"organization_id" validate:"required"`
	EmployeeID     uuid.UUID  `json:"employee_id" validate:"required"`
	ManagerID      *uuid.UUID `json:"manager_id"`
}

type updateRequest struct {
	OrganizationID uuid.UUID  `json:"organization_id" validate:"required"`
	ManagerID      *uuid.UUID `json:"manager_id"`
}

type bulkRequest struct {
	OrganizationID uuid.UUID                `json:"organization_id" validate:"required"`
	Relationships  []hierarchy.Relationship `json:"relationships"`
}

func (c *HierarchyAPIController) GetTree(w http.ResponseWriter, r *http.Request) {
	orgID, ok := c.pathOrganization(w, r)
	if !ok || !c.authorize(w, r, orgID, authz.ObjectHierarchyEdges, authz.ActionRead) {
		return
	}
	forest, err := c.service.GetHierarchyTree(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forest)
}

func (c *HierarchyAPIController) Export(w http.ResponseWriter, r *http.Request) {
	orgID, ok := c.pathOrganization(w, r)
	if !ok || !c.authorize(w, r, orgID, authz.ObjectHierarchyEdges, authz.ActionRead) {
		return
	}
	forest, err := c.service.GetHierarchyTree(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	book, err := services.ExportForest(forest)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	defer func() { _ = book.Close() }()

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="hierarchy-%s.xlsx"`, orgID))
	w.WriteHeader(http.StatusOK)
	if err := book.Write(w); err != nil {
		composables.UseLogger(r.Context()).WithError(err).Error("failed to stream hierarchy export")
	}
}

func (c *HierarchyAPIController) Validate(w http.ResponseWriter, r *http.Request) {
	orgID, ok := c.pathOrganization(w, r)
	if !ok || !c.authorize(w, r, orgID, authz.ObjectHierarchyValidation, authz.ActionRead) {
		return
	}
	result, err := c.validator.ValidateHierarchy(r.Context(), orgID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (c *HierarchyAPIController) GetDirectReports(w http.ResponseWriter, r *http.Request) {
	managerID, ok := pathUUID(w, r, "managerId")
	if !ok {
		return
	}
	orgID, ok := queryOrganization(w, r)
	if !ok || !c.authorize(w, r, orgID, authz.ObjectHierarchyEdges, authz.ActionRead) {
		return
	}
	nodes, err := c.service.GetDirectReports(r.Context(), orgID, managerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (c *HierarchyAPIController) GetManagerChain(w http.ResponseWriter, r *http.Request) {
	employeeID, ok := pathUUID(w, r, "employeeId")
	if !ok {
		return
	}
	orgID, ok := queryOrganization(w, r)
	if !ok || !c.authorize(w, r, orgID, authz.ObjectHierarchyEdges, authz.ActionRead) {
		return
	}
	chain, err := c.service.GetManagerChain(r.Context(), orgID, employeeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, chain)
}

func (c *HierarchyAPIController) Search(w http.ResponseWriter, r *http.Request) {
	var params services.SearchParams
	if err := c.decoder.Decode(&params, r.URL.Query()); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidBody, "invalid search parameters")
		return
	}
	if params.OrganizationID == uuid.Nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeNoOrganization, "organization_id is required")
		return
	}
	if !c.authorize(w, r, params.OrganizationID, authz.ObjectHierarchyEdges, authz.ActionRead) {
		return
	}
	nodes, err := c.service.SearchEmployees(r.Context(), params)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (c *HierarchyAPIController) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !decodeBody(w, r, &req) || !c.authorize(w, r, req.OrganizationID, authz.ObjectHierarchyEdges, authz.ActionWrite) {
		return
	}
	edge, err := c.service.CreateHierarchy(r.Context(), req.OrganizationID, req.EmployeeID, req.ManagerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, edge)
}

func (c *HierarchyAPIController) Update(w http.ResponseWriter, r *http.Request) {
	edgeID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req updateRequest
	if !decodeBody(w, r, &req) || !c.authorize(w, r, req.OrganizationID, authz.ObjectHierarchyEdges, authz.ActionWrite) {
		return
	}
	edge, err := c.service.UpdateHierarchy(r.Context(), req.OrganizationID, edgeID, req.ManagerID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, edge)
}

func (c *HierarchyAPIController) Delete(w http.ResponseWriter, r *http.Request) {
	edgeID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	orgID, ok := queryOrganization(w, r)
	if !ok || !c.authorize(w, r, orgID, authz.ObjectHierarchyEdges, authz.ActionWrite) {
		return
	}
	if err := c.service.DeleteHierarchy(r.Context(), orgID, edgeID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (c *HierarchyAPIController) BulkUpdate(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if !decodeBody(w, r, &req) || !c.authorize(w, r, req.OrganizationID, authz.ObjectHierarchyEdges, authz.ActionWrite) {
		return
	}
	result, err := c.service.BulkUpdateHierarchy(r.Context(), req.OrganizationID, req.Relationships)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if len(result.Errors) > 0 {
		composables.UseLogger(r.Context()).WithFields(logrus.Fields{
			"organization_id": req.OrganizationID,
			"created":         result.Created,
			"updated":         result.Updated,
			"failed":          len(result.Errors),
		}).Info("bulk hierarchy update finished with item errors")
	}
	writeJSON(w, http.StatusOK, result)
}

// authorize checks the casbin policy for the actor's roles and keeps the
// actor inside its own organization unless it holds the cross-org role.
func (c *HierarchyAPIController) authorize(w http.ResponseWriter, r *http.Request, orgID uuid.UUID, object, action string) bool {
	actor, err := composables.UseActor(r.Context())
	if err != nil {
		writeAPIError(w, r, http.StatusUnauthorized, "HIERARCHY_UNAUTHENTICATED", err.Error())
		return false
	}
	if err := c.authz.AuthorizeRoles(r.Context(), actor.Roles, object, action); err != nil {
		var forbidden *authz.ForbiddenError
		if errors.As(err, &forbidden) {
			writeAPIError(w, r, http.StatusForbidden, forbidden.Code(), forbidden.Error())
			return false
		}
		writeServiceError(w, r, err)
		return false
	}
	if actor.OrganizationID == orgID || c.hasCrossOrgRole(actor.Roles) {
		return true
	}
	writeAPIError(w, r, http.StatusForbidden, services.CodeForbiddenOrg, "organization is outside of your scope")
	return false
}

func (c *HierarchyAPIController) hasCrossOrgRole(roles []string) bool {
	want := role.Normalize(c.crossOrgRole)
	if want == "" {
		return false
	}
	for _, r := range roles {
		if role.Normalize(r) == want {
			return true
		}
	}
	return false
}

func (c *HierarchyAPIController) pathOrganization(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["organizationId"])
	if err != nil || id == uuid.Nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeNoOrganization, "invalid organization id")
		return uuid.Nil, false
	}
	return id, true
}

func queryOrganization(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.URL.Query().Get("organization_id")
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeNoOrganization, "organization_id is required")
		return uuid.Nil, false
	}
	return id, true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidBody, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r.Body, out); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidBody, "invalid json body")
		return false
	}
	if err := constants.Validate.Struct(out); err != nil {
		writeAPIError(w, r, http.StatusBadRequest, services.CodeInvalidBody, err.Error())
		return false
	}
	return true
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, r, svcErr.Status, svcErr.Code, svcErr.Message)
		return
	}
	composables.UseLogger(r.Context()).WithError(err).Error("hierarchy request failed")
	writeAPIError(w, r, http.StatusInternalServerError, "HIERARCHY_INTERNAL", "internal error")
}

func writeAPIError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	_ = httpapi.WriteRequestError(w, status, composables.UseRequestID(r.Context()), code, message)
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	if err := httpapi.WriteJSON(w, status, payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
