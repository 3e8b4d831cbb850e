package service

import "fmt"

// MissingResultError is returned when an export finished without producing
// the record the host asked for.
type MissingResultError struct {
	PluginID string
	Export   string
	Want     string
}

func (e *MissingResultError) Error() string {
	return fmt.Sprintf("plugin '%s': %s produced no %s", e.PluginID, e.Export, e.Want)
}
