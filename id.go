package tenancy

import "github.com/xraph/tenancy/id"

// ID is the primary identifier type for all tenancy records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix

// TenantID identifies a tenant.
type TenantID = id.TenantID
