package rbac

// BuiltinTable is the role table compiled into the binary. Deployments may
// replace it with a YAML file of the same shape (see LoadRegistryFile).
func BuiltinTable() TableSpec {
	return TableSpec{
		Baseline: []Permission{PermViewDashboard, PermSubmitFeedback},
		Roles: map[Role]RoleSpec{
			RoleUser: {
				Permissions: []Permission{PermCreateInquiry, PermCancelInquiry},
			},
			RoleEngineer: {
				Permissions: []Permission{PermViewAssignedInquiries, PermUpdateInquiryStatus},
			},
			RoleServiceProvider: {
				Inherits:    RoleEngineer,
				Permissions: []Permission{PermAssignEngineers, PermManageEngineers},
			},
			RoleAdmin: {
				Permissions: []Permission{
					PermManageUsers,
					PermAssignEngineers,
					PermViewAllInquiries,
					PermManageCategories,
					PermViewReports,
					PermManageEngineers,
					PermCreateInquiry,
					PermEditInquiryPrice,
				},
			},
			RoleSuperAdmin: {
				Inherits:    RoleAdmin,
				Permissions: []Permission{PermDeleteInquiries, PermConfigureSystemSettings},
			},
		},
	}
}
