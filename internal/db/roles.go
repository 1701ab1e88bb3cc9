package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/tripdesk/backoffice/internal/model"
)

// GetAccountRoles loads the account's roles with their permission names.
func (db *Postgres) GetAccountRoles(ctx context.Context, accountID uuid.UUID) ([]model.Role, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT r.id, r.name,
			COALESCE(ARRAY_AGG(p.name ORDER BY p.name) FILTER (WHERE p.name IS NOT NULL), '{}') AS permissions
		FROM account_roles ar
		JOIN roles r ON r.id = ar.role_id
		LEFT JOIN role_permissions rp ON rp.role_id = r.id
		LEFT JOIN permissions p ON p.id = rp.permission_id
		WHERE ar.account_id = $1
		GROUP BY r.id, r.name
		ORDER BY r.id
	`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	roles := make([]model.Role, 0)
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Permissions); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}
