package rbac

// Default policy. Judges act only on their own leases, assignments and
// scores; handlers enforce that by taking the judge id from the token.
var RolePermissions = map[string][]string{
	"judge": {
		"application:view",
		"lock:view",
		"lock:acquire",
		"assignment:view",
		"assignment:review",
		"score:submit",
		"score:view",
		"stats:view",
		"judge:view",
		"user:change_password",
	},
	"admin": {
		"*", // everything
	},
}
