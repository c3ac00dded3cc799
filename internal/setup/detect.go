package setup

import (
	"github.com/yolodolo42/dagent/internal/auth"
)

// SetupStatus represents the current setup state
type SetupStatus struct {
	LoggedIn   bool
	Username   string
	Email      string
	IsComplete bool
}

// DetectSetupStatus checks whether a usable session exists
func DetectSetupStatus(dataDir string) (*SetupStatus, error) {
	status := &SetupStatus{}

	authManager, err := auth.NewManager(dataDir)
	if err != nil {
		return status, nil // No auth setup yet
	}

	if authManager.LoggedIn() {
		status.LoggedIn = true
		if claims, err := authManager.Claims(); err == nil {
			status.Username = claims.Username
			status.Email = claims.Email
		}
	}

	status.IsComplete = status.LoggedIn
	return status, nil
}

// NeedsSetup returns true if interactive sign-in should run
func NeedsSetup(dataDir string) bool {
	status, _ := DetectSetupStatus(dataDir)
	return !status.IsComplete
}
