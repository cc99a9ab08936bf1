package auth

import (
	"os"
	"time"
)

// EnvProfile is the name of the profile read from the environment
const EnvProfile = "env"

// EnvironmentStore implements ProfileStore over INSTAGRAM_COOKIES. It is
// read-only.
type EnvironmentStore struct{}

// NewEnvironmentStore creates a new environment-based profile store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(profile *Profile) error {
	return ErrStoreUnavailable
}

// Retrieve returns the environment profile. An empty name or EnvProfile
// matches it.
func (e *EnvironmentStore) Retrieve(name string) (*Profile, error) {
	if name != "" && name != EnvProfile {
		return nil, ErrProfileNotFound
	}
	cookies := os.Getenv("INSTAGRAM_COOKIES")
	if cookies == "" {
		return nil, ErrProfileNotFound
	}

	return &Profile{
		Name:         EnvProfile,
		Cookies:      cookies,
		UserAgent:    os.Getenv("IGFETCH_USER_AGENT"),
		LastModified: time.Now(),
	}, nil
}

// List returns the environment profile if it is set
func (e *EnvironmentStore) List() ([]*Profile, error) {
	profile, err := e.Retrieve("")
	if err != nil {
		return []*Profile{}, nil
	}
	return []*Profile{profile}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if the environment profile is set
func (e *EnvironmentStore) Exists(name string) bool {
	_, err := e.Retrieve(name)
	return err == nil
}
