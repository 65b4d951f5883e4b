package types

// redactedPlaceholder replaces secret values in logs and serialization.
const redactedPlaceholder = "***REDACTED***"

// redactedJSON is the pre-computed JSON encoding of the redacted placeholder.
var redactedJSON = []byte(`"***REDACTED***"`)

// SecretString is a string type that prevents accidental logging or
// serialization of sensitive values. The service carries two of them: the
// Postgres connection string and the Stripe webhook signing secret. Both
// travel through config structs that get logged at startup, so String()
// and MarshalJSON() return a redacted placeholder instead of the value.
//
// Use Unmask() to retrieve the raw plaintext when it is genuinely needed
// (opening the pgx pool, verifying a webhook signature).
type SecretString string

// String returns a redacted placeholder instead of the raw value. Invoked
// by fmt and by slog when the value is logged directly.
func (s SecretString) String() string {
	return redactedPlaceholder
}

// MarshalJSON returns the redacted placeholder as a JSON string, keeping
// secrets out of config dumps and structured log entries.
func (s SecretString) MarshalJSON() ([]byte, error) {
	return redactedJSON, nil
}

// Unmask returns the raw plaintext value of the secret. Callers are the
// database pool constructor and the webhook verifier; anything else
// reaching for this deserves review.
func (s SecretString) Unmask() string {
	return string(s)
}
