package rbac

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lockplane/authcore/pkg/httputil"
)

// Handlers provides HTTP handlers for the role hierarchy engine. Every
// route is tenant-scoped through the X-Tenant-ID header; the optional
// X-Operator-ID header attributes mutations.
type Handlers struct {
	service *Service
}

// NewHandlers creates handlers around a Service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers all authorization routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/authz/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/authz/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/authz/roles/{id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/authz/roles/{id}/grants", h.AssignPermissions).Methods("POST")
	router.HandleFunc("/authz/roles/{id}/permissions", h.GetEffectivePermissions).Methods("GET")
	router.HandleFunc("/authz/roles/{id}/menus", h.GetEffectiveMenus).Methods("GET")
	router.HandleFunc("/authz/roles/{id}/hierarchy/validate", h.ValidateHierarchy).Methods("GET")
	router.HandleFunc("/authz/roles/{id}/parent", h.MoveRole).Methods("PUT")
	router.HandleFunc("/authz/users/{id}/permission-codes", h.GetUserPermissionCodes).Methods("GET")
}

func tenantID(w http.ResponseWriter, r *http.Request) (string, bool) {
	tenant := r.Header.Get("X-Tenant-ID")
	if tenant == "" {
		httputil.WriteBadRequest(w, "X-Tenant-ID header is required")
		return "", false
	}
	return tenant, true
}

func operatorID(r *http.Request) string {
	return r.Header.Get("X-Operator-ID")
}

// writeServiceError maps the engine's error taxonomy onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrDuplicateCode):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, ErrFieldTooLong), errors.Is(err, ErrInvalidHierarchy):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, ErrRoleNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

type createRoleRequest struct {
	RoleID                   string `json:"role_id,omitempty"`
	RoleCode                 string `json:"role_code"`
	RoleName                 string `json:"role_name"`
	RoleDesc                 string `json:"role_desc,omitempty"`
	RoleType                 string `json:"role_type,omitempty"`
	DataScope                string `json:"data_scope,omitempty"`
	DeptID                   string `json:"dept_id,omitempty"`
	OrderIndex               int    `json:"order_index,omitempty"`
	ParentRoleID             string `json:"parent_role_id,omitempty"`
	InheritParentPermissions *bool  `json:"inherit_parent_permissions,omitempty"`
}

// CreateRole creates a root or child role
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}

	var req createRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RoleCode, "role_code") ||
		!httputil.RequireNonEmpty(w, req.RoleName, "role_name") {
		return
	}

	role := &Role{
		RoleID:                   req.RoleID,
		TenantID:                 tenant,
		RoleCode:                 req.RoleCode,
		RoleName:                 req.RoleName,
		RoleDesc:                 req.RoleDesc,
		RoleType:                 RoleType(req.RoleType),
		DataScope:                req.DataScope,
		DeptID:                   req.DeptID,
		OrderIndex:               req.OrderIndex,
		ParentRoleID:             req.ParentRoleID,
		InheritParentPermissions: true,
	}
	if req.InheritParentPermissions != nil {
		role.InheritParentPermissions = *req.InheritParentPermissions
	}

	created, err := h.service.CreateRole(r.Context(), role, operatorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteCreated(w, created)
}

// GetRole returns one role record
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	roleID := mux.Vars(r)["id"]

	role, err := h.service.GetRole(r.Context(), tenant, roleID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, role)
}

type updateRoleRequest struct {
	RoleName                 string `json:"role_name"`
	RoleDesc                 string `json:"role_desc,omitempty"`
	Status                   string `json:"status,omitempty"`
	DataScope                string `json:"data_scope,omitempty"`
	OrderIndex               int    `json:"order_index,omitempty"`
	InheritParentPermissions *bool  `json:"inherit_parent_permissions,omitempty"`
}

// UpdateRole updates a role's descriptive fields
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	roleID := mux.Vars(r)["id"]

	var req updateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.RoleName, "role_name") {
		return
	}

	current, err := h.service.GetRole(r.Context(), tenant, roleID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	current.RoleName = req.RoleName
	current.RoleDesc = req.RoleDesc
	if req.Status != "" {
		current.Status = RoleStatus(req.Status)
	}
	current.DataScope = req.DataScope
	current.OrderIndex = req.OrderIndex
	if req.InheritParentPermissions != nil {
		current.InheritParentPermissions = *req.InheritParentPermissions
	}

	if err := h.service.UpdateRole(r.Context(), current, operatorID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, current)
}

type assignPermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
	MenuIDs       []string `json:"menu_ids,omitempty"`
}

// AssignPermissions replaces the role's direct permission and menu sets
func (h *Handlers) AssignPermissions(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	roleID := mux.Vars(r)["id"]

	var req assignPermissionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	err := h.service.AssignPermissions(r.Context(), tenant, roleID, req.PermissionIDs, req.MenuIDs, operatorID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetEffectivePermissions returns the role's effective (inherited) permissions
func (h *Handlers) GetEffectivePermissions(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	roleID := mux.Vars(r)["id"]

	perms, err := h.service.GetEffectivePermissions(r.Context(), tenant, roleID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if perms == nil {
		perms = []Permission{}
	}
	httputil.WriteSuccess(w, perms)
}

// GetEffectiveMenus returns the role's effective (inherited) menus
func (h *Handlers) GetEffectiveMenus(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	roleID := mux.Vars(r)["id"]

	menus, err := h.service.GetEffectiveMenus(r.Context(), tenant, roleID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if menus == nil {
		menus = []Menu{}
	}
	httputil.WriteSuccess(w, menus)
}

// ValidateHierarchy reports whether the parent_id query parameter names a
// legal parent for the role
func (h *Handlers) ValidateHierarchy(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	roleID := mux.Vars(r)["id"]
	parentID := r.URL.Query().Get("parent_id")

	role, err := h.service.GetRole(r.Context(), tenant, roleID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	valid := h.service.ValidateRoleHierarchy(r.Context(), role, parentID)
	httputil.WriteSuccess(w, map[string]bool{"valid": valid})
}

type moveRoleRequest struct {
	NewParentID string `json:"new_parent_id"`
}

// MoveRole re-parents a role; an empty new_parent_id makes it a root
func (h *Handlers) MoveRole(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	roleID := mux.Vars(r)["id"]

	var req moveRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.MoveRole(r.Context(), tenant, roleID, req.NewParentID, operatorID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// GetUserPermissionCodes returns the union of effective permission codes
// across the user's roles
func (h *Handlers) GetUserPermissionCodes(w http.ResponseWriter, r *http.Request) {
	tenant, ok := tenantID(w, r)
	if !ok {
		return
	}
	userID := mux.Vars(r)["id"]

	codes, err := h.service.GetUserPermissionCodes(r.Context(), tenant, userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if codes == nil {
		codes = []string{}
	}
	httputil.WriteSuccess(w, codes)
}
