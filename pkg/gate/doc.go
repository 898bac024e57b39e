// Package gate composes tenant-level guards into an ordered chain.
//
// A gate inspects a Subject (resolved tenant, principal, lookup failure,
// clock) and either passes or returns a typed denial. A Chain runs its gates
// in order and stops at the first denial, so the order encodes precedence:
//
//	chain := gate.Chain{
//		gate.RequireTenant(),
//		gate.RequireMembership(),
//		gate.RequireActiveSubscription(),
//		gate.RequirePlan(tenants.PlanProfessional, tenants.PlanEnterprise),
//	}
//	if err := chain.Run(ctx, gate.SubjectFromContext(ctx)); err != nil {
//		httputil.WriteDenial(w, err)
//		return
//	}
//
// Every denial implements DenialCode and DenialDetails and maps to a fixed
// HTTP status in pkg/httputil.
package gate
