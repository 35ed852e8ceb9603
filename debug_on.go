//go:build depotdebug

package depot

// debugChecks enables column type and handle validation on every access.
const debugChecks = true
