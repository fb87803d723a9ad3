package state

import "fmt"

// errMissingConfigKey reports a persisted room config that lost one of
// its mandatory identity keys.
func errMissingConfigKey(key string) error {
	return fmt.Errorf("state: missing required config key %q", key)
}
