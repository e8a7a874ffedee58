// Package logger builds the zap logger for the service.
package logger

import (
	"go.uber.org/zap"
)

// New returns a structured logger tuned for the given environment:
// JSON output in production, console output elsewhere.
func New(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
