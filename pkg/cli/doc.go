// Package cli implements crmgate-admin, the operator tool for tenant
// administration. Commands connect straight to the stores the server uses.
//
// # Commands
//
// Lifecycle transitions:
//
//	crmgate-admin suspend --tenant <id>
//	crmgate-admin reinstate --tenant <id>
//	crmgate-admin set-plan --tenant <id> --plan professional
//	crmgate-admin set-seats --tenant <id> --max 40
//	crmgate-admin expire-trials
//
// Sessions (requires the redis session backend):
//
//	crmgate-admin issue-session --user u-1 --tenant <id> --role admin
//
// Usage:
//
//	crmgate-admin usage --tenant <id>,<id> --workers 8
//	crmgate-admin limits --file /etc/crmgate/limits.yaml
//
// Audit trail:
//
//	crmgate-admin audit --tenant <id> --since 168h --format csv
//
// Transitions made here are recorded in the audit trail too.
//
// limits does not connect; it validates a limits file and prints the
// merged result.
package cli
