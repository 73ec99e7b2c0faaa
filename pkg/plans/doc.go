// Package plans holds the plan catalog: named subscription plans with a
// price, a billing cycle and a set of typed limits.
//
// Limits are stored as raw strings tagged with a data type (number, boolean,
// string) and parsed exactly once when the catalog loads. A limit that does
// not parse is kept in the catalog and reported as ErrConfiguration every
// time it is read, so enforcement fails closed instead of falling back to a
// default. Use Catalog.Validate or WithStrictValidation to surface such
// problems at startup.
//
// A number limit of Unlimited (-1) means no ceiling.
//
// Plans come from a Source. NewInMemSource is handy for tests and seeding;
// NewYAMLSource reads a catalog file:
//
//	catalog, err := plans.NewCatalog(ctx, plans.NewYAMLSource("plans.yaml"))
//	limit, err := catalog.Limit("basic", plans.MaxBranches)
//
// ComparePlans reports what a tenant gains or loses when switching plans.
package plans
