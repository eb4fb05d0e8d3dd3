// Package httpd starts the analyzer HTTP service.
package httpd

import (
	"fmt"

	"github.com/masud-ahmed-alt/ATS-Content-Compliance/internal/bootstrap"
)

// Start builds the application from the config at path and runs it until
// interrupted.
func Start(configPath string) error {
	app, err := bootstrap.New(configPath)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return app.Run()
}
