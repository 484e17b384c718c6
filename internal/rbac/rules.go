package rbac

const (
	PermQuestionView   = "question:view"
	PermQuestionCreate = "question:create"
	PermQuestionImport = "question:import"
	PermQuestionTag    = "question:tag"
	PermQuestionDelete = "question:delete"
	PermQuestionExport = "question:export"
)

// RolePermissions is the default policy.
var RolePermissions = map[string][]string{
	"reviewer": {
		PermQuestionView,
		PermQuestionExport,
	},
	"author": {
		"question:*",
	},
	"admin": {
		"*",
	},
}
