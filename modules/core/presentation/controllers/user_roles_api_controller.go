package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/iota-uz/feedback-hub/modules/core/services"
	"github.com/iota-uz/feedback-hub/pkg/application"
	"github.com/iota-uz/feedback-hub/pkg/authz"
	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/httpapi"
	"github.com/iota-uz/feedback-hub/pkg/middleware"
)

type UserRolesAPIController struct {
	apiPrefix string
	service   *services.UserRoleService
	authz     *authz.Service
}

func NewUserRolesAPIController(service *services.UserRoleService, authzSvc *authz.Service) application.Controller {
	return &UserRolesAPIController{
		apiPrefix: "/core/api",
		service:   service,
		authz:     authzSvc,
	}
}

func (c *UserRolesAPIController) Key() string {
	return c.apiPrefix + "/users"
}

func (c *UserRolesAPIController) Register(r *mux.Router) {
	api := r.PathPrefix(c.apiPrefix).Subrouter()
	api.Use(middleware.RequireActor())

	api.HandleFunc("/users/{id}/roles", c.AssignRoles).Methods(http.MethodPut)
}

type assignRolesRequest struct {
	Roles                []string    `json:"roles"`
	AdminOrganizationIDs []uuid.UUID `json:"admin_organization_ids"`
}

func (c *UserRolesAPIController) AssignRoles(w http.ResponseWriter, r *http.Request) {
	requestID := composables.UseRequestID(r.Context())
	actor, err := composables.UseActor(r.Context())
	if err != nil {
		writeAPIError(w, http.StatusUnauthorized, requestID, services.CodeUnauthenticated, err.Error())
		return
	}
	if err := c.authz.AuthorizeRoles(r.Context(), actor.Roles, authz.ObjectUserRoles, authz.ActionWrite); err != nil {
		writeAuthzError(w, requestID, err)
		return
	}

	userID, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid user id")
		return
	}
	var req assignRolesRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeAPIError(w, http.StatusBadRequest, requestID, services.CodeInvalidBody, "invalid json body")
		return
	}

	res, err := c.service.AssignRoles(r.Context(), actor.ID, services.AssignRolesInput{
		UserID:               userID,
		Roles:                req.Roles,
		AdminOrganizationIDs: req.AdminOrganizationIDs,
	})
	if err != nil {
		writeServiceError(w, requestID, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func decodeJSON(body io.ReadCloser, out any) error {
	defer func() { _ = body.Close() }()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(out)
}

func writeAuthzError(w http.ResponseWriter, requestID string, err error) {
	var forbidden *authz.ForbiddenError
	if errors.As(err, &forbidden) {
		writeAPIError(w, http.StatusForbidden, requestID, forbidden.Code(), forbidden.Error())
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, "CORE_INTERNAL", err.Error())
}

func writeServiceError(w http.ResponseWriter, requestID string, err error) {
	var svcErr *services.ServiceError
	if errors.As(err, &svcErr) {
		writeAPIError(w, svcErr.Status, requestID, svcErr.Code, svcErr.Message)
		return
	}
	writeAPIError(w, http.StatusInternalServerError, requestID, "CORE_INTERNAL", err.Error())
}

func writeAPIError(w http.ResponseWriter, status int, requestID, code, message string) {
	_ = httpapi.WriteRequestError(w, status, requestID, code, message)
}

func writeJSON[T any](w http.ResponseWriter, status int, payload T) {
	if err := httpapi.WriteJSON(w, status, payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
