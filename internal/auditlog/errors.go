package auditlog

import "strings"

// IsConflict reports whether err is a primary-key uniqueness violation.
// The modernc driver surfaces SQLITE_CONSTRAINT through its error text;
// matching on the constraint message avoids binding to driver internals.
func IsConflict(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint")
}
