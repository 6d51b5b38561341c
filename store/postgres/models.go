package postgres

import (
	"encoding/json"
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/tenancy/alert"
	"github.com/xraph/tenancy/id"
	"github.com/xraph/tenancy/tenant"
	"github.com/xraph/tenancy/types"
	"github.com/xraph/tenancy/usage"
)

// ==================== Tenant models ====================

type tenantModel struct {
	grove.BaseModel `grove:"table:tenancy_tenants"`

	ID            string          `grove:"id,pk"`
	Name          string          `grove:"name"`
	Slug          *string         `grove:"slug"`
	PlanID        string          `grove:"plan_id"`
	Status        string          `grove:"status"`
	Settings      json.RawMessage `grove:"settings,type:jsonb"`
	UsageUsers    int64           `grove:"usage_users"`
	UsageEvents   int64           `grove:"usage_events"`
	UsageStorage  int64           `grove:"usage_storage"`
	UsageAPICalls int64           `grove:"usage_api_calls"`
	CreatedAt     time.Time       `grove:"created_at"`
	UpdatedAt     time.Time       `grove:"updated_at"`
}

func toTenantModel(t *tenant.Tenant) *tenantModel {
	settings, _ := json.Marshal(t.Settings) //nolint:errcheck // best-effort

	return &tenantModel{
		ID:            t.ID.String(),
		Name:          t.Name,
		Slug:          nullableString(t.Slug),
		PlanID:        t.PlanID,
		Status:        string(t.Status),
		Settings:      settings,
		UsageUsers:    t.Usage.Users,
		UsageEvents:   t.Usage.Events,
		UsageStorage:  t.Usage.Storage,
		UsageAPICalls: t.Usage.APICalls,
		CreatedAt:     t.CreatedAt,
		UpdatedAt:     t.UpdatedAt,
	}
}

func fromTenantModel(m *tenantModel) (*tenant.Tenant, error) {
	tenantID, err := id.ParseTenantID(m.ID)
	if err != nil {
		return nil, err
	}

	var settings tenant.Settings
	if len(m.Settings) > 0 {
		if err := json.Unmarshal(m.Settings, &settings); err != nil {
			return nil, err
		}
	}

	t := &tenant.Tenant{
		Entity: types.Entity{
			CreatedAt: m.CreatedAt,
			UpdatedAt: m.UpdatedAt,
		},
		ID:       tenantID,
		Name:     m.Name,
		PlanID:   m.PlanID,
		Status:   tenant.Status(m.Status),
		Settings: settings,
		Usage:    m.usage(),
	}
	if m.Slug != nil {
		t.Slug = *m.Slug
	}
	return t, nil
}

func (m *tenantModel) usage() usage.Usage {
	return usage.Usage{
		Users:    m.UsageUsers,
		Events:   m.UsageEvents,
		Storage:  m.UsageStorage,
		APICalls: m.UsageAPICalls,
	}
}

// ==================== Membership models ====================

type membershipModel struct {
	grove.BaseModel `grove:"table:tenancy_memberships"`

	ID                 string          `grove:"id,pk"`
	TenantID           string          `grove:"tenant_id"`
	UserID             string          `grove:"user_id"`
	Role               string          `grove:"role"`
	FeaturePermissions json.RawMessage `grove:"feature_permissions,type:jsonb"`
	IsActive           bool            `grove:"is_active"`
	CreatedAt          time.Time       `grove:"created_at"`
	UpdatedAt          time.Time       `grove:"updated_at"`
}

func toMembershipModel(m *tenant.Membership) *membershipModel {
	perms := m.FeaturePermissions
	if perms == nil {
		perms = []string{}
	}
	raw, _ := json.Marshal(perms) //nolint:errcheck // best-effort

	return &membershipModel{
		ID:                 m.ID.String(),
		TenantID:           m.TenantID.String(),
		UserID:             m.UserID,
		Role:               string(m.Role),
		FeaturePermissions: raw,
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

	var perms []string
	if len(m.FeaturePermissions) > 0 {
		if err := json.Unmarshal(m.FeaturePermissions, &perms); err != nil {
			return nil, err
		}
	}
	if len(perms) == 0 {
		perms = nil
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
		FeaturePermissions: perms,
		IsActive:           m.IsActive,
	}, nil
}

// ==================== Usage record models ====================

type usageRecordModel struct {
	grove.BaseModel `grove:"table:tenancy_usage_records"`

	ID        string            `grove:"id,pk"`
	TenantID  string            `grove:"tenant_id"`
	Metric    string            `grove:"metric"`
	Value     int64             `grove:"value"`
	Timestamp time.Time         `grove:"timestamp"`
	Source    string            `grove:"source"`
	Metadata  map[string]string `grove:"metadata,type:jsonb"`
}

func toUsageRecordModel(r *usage.Record) *usageRecordModel {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	return &usageRecordModel{
		ID:        r.ID.String(),
		TenantID:  r.TenantID.String(),
		Metric:    string(r.Metric),
		Value:     r.Value,
		Timestamp: r.Timestamp,
		Source:    r.Source,
		Metadata:  meta,
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

	meta := m.Metadata
	if len(meta) == 0 {
		meta = nil
	}

	return &usage.Record{
		ID:        recID,
		TenantID:  tenantID,
		Metric:    usage.Metric(m.Metric),
		Value:     m.Value,
		Timestamp: m.Timestamp,
		Source:    m.Source,
		Metadata:  meta,
	}, nil
}

// ==================== Alert models ====================

type alertModel struct {
	grove.BaseModel `grove:"table:tenancy_alerts"`

	ID             string     `grove:"id,pk"`
	TenantID       string     `grove:"tenant_id"`
	Metric         string     `grove:"metric"`
	CurrentValue   int64      `grove:"current_value"`
	Limit          int64      `grove:"limit_value"`
	Percentage     float64    `grove:"percentage"`
	Type           string     `grove:"type"`
	IsActive       bool       `grove:"is_active"`
	ResolvedAt     *time.Time `grove:"resolved_at"`
	LastNotifiedAt *time.Time `grove:"last_notified_at"`
	CreatedAt      time.Time  `grove:"created_at"`
	UpdatedAt      time.Time  `grove:"updated_at"`
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

// nullableString maps the empty string to NULL so the partial unique slug
// index ignores tenants without a slug.
func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

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
