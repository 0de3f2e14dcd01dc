package types

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSecretString_Redaction(t *testing.T) {
	s := SecretString("sk_live_abc123")

	assert.Equal(t, "***REDACTED***", s.String())
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%v", s))
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%s", s))
	assert.Equal(t, "sk_live_abc123", s.Unmask())
}

func TestSecretString_MarshalJSON(t *testing.T) {
	payload := struct {
		Key SecretString `json:"key"`
	}{Key: "whsec_topsecret"}

	b, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"key":"***REDACTED***"}`, string(b))
}
