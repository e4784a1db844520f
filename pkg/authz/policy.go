package authz

const defaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch(r.obj, p.obj) && (p.act == "*" || r.act == p.act)
`

var (
	ObjectHierarchyEdges      = ObjectName("hierarchy", "edges")
	ObjectHierarchyValidation = ObjectName("hierarchy", "validation")
	ObjectUserRoles           = ObjectName("core", "user_roles")
)

// defaultPolicies grant reads to every role and writes to admins.
var defaultPolicies = [][]string{
	{SubjectForRole("employee"), ObjectHierarchyEdges, ActionRead},
	{SubjectForRole("admin"), ObjectHierarchyEdges, ActionWrite},
	{SubjectForRole("admin"), ObjectHierarchyValidation, ActionRead},
	{SubjectForRole("admin"), ObjectUserRoles, ActionWrite},
	{SubjectForRole("super_admin"), "*", "*"},
}

// defaultGroupings make each role inherit the grants of the role below it.
var defaultGroupings = [][]string{
	{SubjectForRole("manager"), SubjectForRole("employee")},
	{SubjectForRole("admin"), SubjectForRole("manager")},
	{SubjectForRole("super_admin"), SubjectForRole("admin")},
}
