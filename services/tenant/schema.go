package tenant

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const maxSchemaNameLen = 63

var schemaNamePattern = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// DeriveSchemaName turns a display name into a schema identifier, e.g.
// "Acme Corp." becomes "acme_corp".
func DeriveSchemaName(name string) string {
	s := strings.ReplaceAll(slug.Make(name), "-", "_")
	if s == "" {
		return ""
	}
	if s[0] >= '0' && s[0] <= '9' {
		s = "t_" + s
	}
	if len(s) > maxSchemaNameLen {
		s = strings.TrimRight(s[:maxSchemaNameLen], "_")
	}
	return s
}

// ValidateSchemaName rejects names Postgres would refuse or reserves for itself.
// "public" is only allowed for the public tenant.
func ValidateSchemaName(name string, public bool) error {
	if !schemaNamePattern.MatchString(name) {
		return fmt.Errorf("schema name %q must match %s", name, schemaNamePattern.String())
	}
	if strings.HasPrefix(name, "pg_") || name == "information_schema" {
		return fmt.Errorf("schema name %q is reserved", name)
	}
	if name == "public" && !public {
		return fmt.Errorf("schema name %q is reserved for the public tenant", name)
	}
	return nil
}

// SchemaProvisioner creates the isolation namespace of a new tenant.
type SchemaProvisioner interface {
	CreateSchema(ctx context.Context, tx *gorm.DB, tenant Isolated) error
}

type postgresProvisioner struct {
	enabled bool
	public  string
}

// NewSchemaProvisioner returns a provisioner issuing CREATE SCHEMA on Postgres
// connections. Other dialects have no schemas and are left untouched.
// Schemas are never dropped.
func NewSchemaProvisioner(enabled bool, publicSchema string) SchemaProvisioner {
	return &postgresProvisioner{enabled: enabled, public: publicSchema}
}

func (p *postgresProvisioner) CreateSchema(ctx context.Context, tx *gorm.DB, tenant Isolated) error {
	key := tenant.IsolationKey()
	if !p.enabled || key == p.public || tx.Dialector.Name() != "postgres" {
		return nil
	}

	if err := tx.WithContext(ctx).Exec("CREATE SCHEMA IF NOT EXISTS ?", clause.Table{Name: key}).Error; err != nil {
		return fmt.Errorf("failed to create schema %s: %w", key, err)
	}

	zap.L().Info("tenant schema created", zap.String("schema_name", key))
	return nil
}
