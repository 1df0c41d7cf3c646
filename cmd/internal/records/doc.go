// Package records stores the per-user calculator records and broker accounts
// and announces every successful write to the user's live channels.
//
// Three categories exist: single and pro calculator records, announced under
// the "calculator" key, and broker accounts, announced under "resource".
// Writes are persisted first; the data_update event is published only after
// the store returns successfully.
package records
