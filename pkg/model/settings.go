package model

// Settings is the bag of runtime test preferences. Persisting it is the
// caller's concern; the fleet manager only reads the current values.
type Settings struct {
	TestURL              string `json:"testUrl"`
	TestTimeoutMs        int    `json:"testTimeoutMs"`
	AutoCloseConnections bool   `json:"autoCloseConnections"`
}
