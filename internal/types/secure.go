package types

const redactedPlaceholder = "***REDACTED***"

var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type for credentials (Stripe keys, database URLs)
// that must never reach logs or serialized output. It satisfies fmt.Stringer
// and json.Marshaler with a fixed placeholder, so a config struct can be
// dumped for debugging without leaking secrets.
//
// Unmask returns the plaintext; call it only at the point of use, such as
// building an Authorization header or opening a connection pool.
type SecretString string

// String returns a redacted placeholder instead of the raw value.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret.
func (s SecretString) Unmask() string {
	return string(s)
}
