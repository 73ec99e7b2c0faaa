package plans

// BillingCycle is the renewal period of a plan.
type BillingCycle string

const (
	Monthly BillingCycle = "monthly"
	Yearly  BillingCycle = "yearly"
)

// Valid reports whether c is a known billing cycle.
func (c BillingCycle) Valid() bool {
	return c == Monthly || c == Yearly
}

// DataType declares how a limit's raw value is parsed.
type DataType string

const (
	TypeNumber  DataType = "number"
	TypeBoolean DataType = "boolean"
	TypeString  DataType = "string"
)

// Valid reports whether t is a known data type.
func (t DataType) Valid() bool {
	switch t {
	case TypeNumber, TypeBoolean, TypeString:
		return true
	}
	return false
}

// Key names a plan limit.
type Key string

// Limit keys known to the platform. Plans may define others.
const (
	MaxBranches    Key = "max_branches"
	StorageQuotaGB Key = "storage_quota_gb"
	KDSEnabled     Key = "kds_enabled"
)

// Unlimited as a number limit means no ceiling (-1 keeps the column numeric in SQL).
const Unlimited int64 = -1
