package conversation

import (
	"crypto/subtle"
	"errors"
)

// ErrUnauthorized is returned when a device presents the wrong shared secret.
var ErrUnauthorized = errors.New("invalid authentication token")

// Gate validates the shared hardware token before any AI cost is incurred.
type Gate struct {
	token []byte
}

// NewGate creates a Gate for the configured master token. An empty master
// token rejects every device.
func NewGate(masterToken string) *Gate {
	return &Gate{token: []byte(masterToken)}
}

// Check returns ErrUnauthorized unless token equals the master token exactly.
func (g *Gate) Check(token string) error {
	if len(g.token) == 0 {
		return ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(g.token, []byte(token)) != 1 {
		return ErrUnauthorized
	}
	return nil
}
