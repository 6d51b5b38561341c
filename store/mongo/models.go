package mongo

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/types"
	"github.com/xraph/tenancy/usage"
)

// ──────────────────────────────────────────────────
// Tenant
// ──────────────────────────────────────────────────

type tenantModel struct {
	grove.BaseModel `grove:"table:tenancy_tenants"`

	ID        string          `grove:"id,pk"      bson:"_id"`
	Name      string          `grove:"name"       bson:"name"`
	Slug      string          `grove:"slug"       bson:"slug,omitempty"`
	PlanID    string          `grove:"plan_id"    bson:"plan_id"`
	Status    string          `grove:"status"     bson:"status"`
	Settings  tenant.Settings `grove:"settings"   bson:"settings"`
	Usage     usage.Usage     `grove:"usage"      bson:"usage"`
	CreatedAt time.Time       `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time       `grove:"updated_at" bson:"updated_at"`
}

func toTenantModel(t *tenant.Tenant) *tenantModel {
	return &tenantModel{
		ID:        t.ID.String(),
		Name:      t.Name,
		Slug:      t.Slug,
		PlanID:    t.PlanID,
		Status:    string(t.Status),
		Settings:  t.Settings,
		Usage:     t.Usage,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func fromTenantModel(m *tenantModel) (*tenant.Tenant, error) {
	tenantID, err := id.ParseTenantID(m.ID)
	if err != nil {
		return nil, err
	}

	return &tenant.Tenant{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       tenantID,
		Name:     m.Name,
		Slug:     m.Slug,
		PlanID:   m.PlanID,
		Status:   tenant.Status(m.Status),
		Settings: m.Settings,
		Usage:    m.Usage,
	}, nil
}

// usageModel is the projection used by the counter operations.
type usageModel struct {
	Usage usage.Usage `bson:"usage"`
}

// ──────────────────────────────────────────────────
// Membership
// ──────────────────────────────────────────────────

type membershipModel struct {
	grove.BaseModel `grove:"table:tenancy_memberships"`

	ID                 string    `grove:"id,pk"               bson:"_id"`
	TenantID           string    `grove:"tenant_id"           bson:"tenant_id"`
	UserID             string    `grove:"user_id"             bson:"user_id"`
	Role               string    `grove:"role"                bson:"role"`
	FeaturePermissions []string  `grove:"feature_permissions" bson:"feature_permissions,omitempty"`
	IsActive           bool      `grove:"is_active"           bson:"is_active"`
	CreatedAt          time.Time `grove:"created_at"          bson:"created_at"`
	UpdatedAt          time.Time `grove:"updated_at"          bson:"updated_at"`
}

func toMembershipModel(m *tenant.Membership) *membershipModel {
	return &membershipModel{
		ID:                 m.ID.String(),
		TenantID:           m.TenantID.String(),
		UserID:             m.UserID,
		Role:               string(m.Role),
		FeaturePermissions: m.FeaturePermissions,
		IsActive:           m.IsActive,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

func fromMembershipModel(m *membershipModel) (*tenant.Membership, error) {
	memberID, err := id.ParseMembershipID(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}

	return &tenant.Membership{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:                 memberID,
		TenantID:           tenantID,
		UserID:             m.UserID,
		Role:               tenant.Role(m.Role),
		FeaturePermissions: m.FeaturePermissions,
		IsActive:           m.IsActive,
	}, nil
}

// ──────────────────────────────────────────────────
// Usage record
// ──────────────────────────────────────────────────

type usageRecordModel struct {
	grove.BaseModel `grove:"table:tenancy_usage_records"`

	ID        string            `grove:"id,pk"     bson:"_id"`
	TenantID  string            `grove:"tenant_id" bson:"tenant_id"`
	Metric    string            `grove:"metric"    bson:"metric"`
	Value     int64             `grove:"value"     bson:"value"`
	Timestamp time.Time         `grove:"timestamp" bson:"timestamp"`
	Source    string            `grove:"source"    bson:"source,omitempty"`
	Metadata  map[string]string `grove:"metadata"  bson:"metadata,omitempty"`
}

func toUsageRecordModel(r *usage.Record) *usageRecordModel {
	return &usageRecordModel{
		ID:        r.ID.String(),
		TenantID:  r.TenantID.String(),
		Metric:    string(r.Metric),
		Value:     r.Value,
		Timestamp: r.Timestamp,
		Source:    r.Source,
		Metadata:  r.Metadata,
	}
}

func fromUsageRecordModel(m *usageRecordModel) (*usage.Record, error) {
	recID, err := id.ParseUsageRecordID(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}

	return &usage.Record{
		ID:        recID,
		TenantID:  tenantID,
		Metric:    usage.Metric(m.Metric),
		Value:     m.Value,
		Timestamp: m.Timestamp,
		Source:    m.Source,
		Metadata:  m.Metadata,
	}, nil
}

// ──────────────────────────────────────────────────
// Alert
// ──────────────────────────────────────────────────

type alertModel struct {
	grove.BaseModel `grove:"table:tenancy_alerts"`

	ID             string     `grove:"id,pk"            bson:"_id"`
	TenantID       string     `grove:"tenant_id"        bson:"tenant_id"`
	Metric         string     `grove:"metric"           bson:"metric"`
	CurrentValue   int64      `grove:"current_value"    bson:"current_value"`
	Limit          int64      `grove:"limit_value"      bson:"limit_value"`
	Percentage     float64    `grove:"percentage"       bson:"percentage"`
	Type           string     `grove:"type"             bson:"type"`
	IsActive       bool       `grove:"is_active"        bson:"is_active"`
	ResolvedAt     *time.Time `grove:"resolved_at"      bson:"resolved_at,omitempty"`
	LastNotifiedAt *time.Time `grove:"last_notified_at" bson:"last_notified_at,omitempty"`
	CreatedAt      time.Time  `grove:"created_at"       bson:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"       bson:"updated_at"`
}

func toAlertModel(a *alert.Alert) *alertModel {
	return &alertModel{
		ID:             a.ID.String(),
		TenantID:       a.TenantID.String(),
		Metric:         string(a.Metric),
		CurrentValue:   a.CurrentValue,
		Limit:          a.Limit,
		Percentage:     a.Percentage,
		Type:           string(a.Type),
		IsActive:       a.IsActive,
		ResolvedAt:     a.ResolvedAt,
		LastNotifiedAt: a.LastNotifiedAt,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func fromAlertModel(m *alertModel) (*alert.Alert, error) {
	alertID, err := id.ParseAlertID(m.ID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(m.TenantID)
	if err != nil {
		return nil, err
	}

	return &alert.Alert{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:             alertID,
		TenantID:       tenantID,
		Metric:         usage.Metric(m.Metric),
		CurrentValue:   m.CurrentValue,
		Limit:          m.Limit,
		Percentage:     m.Percentage,
		Type:           alert.Type(m.Type),
		IsActive:       m.IsActive,
		ResolvedAt:     m.ResolvedAt,
		LastNotifiedAt: m.LastNotifiedAt,
	}, nil
}

// convertAll converts a slice of models with the given converter.
func convertAll[M, T any](models []M, conv func(*M) (*T, error)) ([]*T, error) {
	out := make([]*T, len(models))
	for i := range models {
		v, err := conv(&models[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
