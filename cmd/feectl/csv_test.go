package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coaching-fees/internal/auth"
)

func TestReadMemberIDs(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{"header", "name,member_id\nAsha,m1\nKabir, m2\n", []string{"m1", "m2"}},
		{"camel header", "memberId\nm1\n", []string{"m1"}},
		{"bare ids", "m1\nm2\n\nm3\n", []string{"m1", "m2", "m3"}},
		{"short rows skipped", "name,member_id\nonly-name\nAsha,m1\n", []string{"m1"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := readMemberIDs(strings.NewReader(tc.in))
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReadMemberIDsRejectsEmpty(t *testing.T) {
	_, err := readMemberIDs(strings.NewReader(""))
	assert.Error(t, err)

	_, err = readMemberIDs(strings.NewReader("member_id\n"))
	assert.Error(t, err)
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("AUTH_JWT_SECRET", "test-secret")
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--coaching", "c1", "--role", "operator", "--subject", "desk-1"})

	require.NoError(t, root.Execute())

	claims, err := auth.ParseJWT(strings.TrimSpace(out.String()), []byte("test-secret"))
	require.NoError(t, err)
	assert.Equal(t, "c1", claims.TenantID)
	assert.Equal(t, string(auth.RoleOperator), claims.Role)
	assert.Equal(t, "desk-1", claims.Subject)
}

func TestCommandsNeedDSN(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	root := newRootCmd()
	root.SetArgs([]string{"ledger", "--coaching", "c1", "--member", "m1"})
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}
