package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserFieldAccess(t *testing.T) {
	u := &User{}

	for _, col := range []string{ColID, ColName, ColEmail, ColPassword, ColResetPasswordToken, ColResetPasswordExp} {
		require.True(t, Writable(col), col)
		require.NoError(t, u.SetField(col, "v-"+col))
		assert.Equal(t, "v-"+col, u.Field(col))
	}

	assert.Equal(t, "v-password", u.Password)
	assert.Equal(t, "v-reset_password_exp", u.ResetPasswordExp)
}

func TestUserSetField_Unknown(t *testing.T) {
	u := &User{}

	assert.Error(t, u.SetField("created_at", "2024-01-01"))
	assert.False(t, Writable("created_at"))
	assert.Equal(t, "", u.Field("nope"))
}

func TestUserJSON_HidesSecrets(t *testing.T) {
	u := &User{ID: "u1", Email: "foo@bar.com", Password: "$2a$...", ResetPasswordToken: "abc"}

	raw, err := json.Marshal(u)
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"email":"foo@bar.com"`)
	assert.NotContains(t, string(raw), "password")
	assert.NotContains(t, string(raw), "abc")
}
