// Package logx is the ambient logging shim. The teacher never reaches for a
// logging library (plain fmt.Printf for recovery/vacuum progress in
// pkg/storage/engine.go) so this keeps the same texture: a thin wrapper over
// the standard library's log.Logger, not a structured-logging dependency the
// corpus never uses. See DESIGN.md for the justification.
package logx

import (
	"log"
	"os"
)

// Logger is the minimal surface components in this module depend on.
type Logger interface {
	Printf(format string, args ...any)
}

// Default is a stdout logger with a component-agnostic prefix, used when a
// caller does not provide one of its own.
var Default Logger = log.New(os.Stdout, "epicenter: ", log.LstdFlags)

// Named returns a Logger prefixed with component, mirroring the
// "Recovered table '%s' index '%s'..." style messages in the teacher's
// StorageEngine.Recover and Vacuum.
func Named(component string) Logger {
	return log.New(os.Stdout, "epicenter["+component+"]: ", log.LstdFlags)
}
