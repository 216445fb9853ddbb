package authz

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthorize_AnyOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		principal []string
		required  []string
		granted   bool
	}{
		{name: "one overlapping role", principal: []string{"BUYER", "SELLER"}, required: []string{"SELLER", "ADMIN"}, granted: true},
		{name: "exact match", principal: []string{"ADMIN"}, required: []string{"ADMIN"}, granted: true},
		{name: "no overlap", principal: []string{"BUYER"}, required: []string{"ADMIN"}, granted: false},
		{name: "subset not required", principal: []string{"BUYER", "SELLER", "ADMIN"}, required: []string{"SELLER"}, granted: true},
		{name: "unknown tag only", principal: []string{"INTERN"}, required: []string{"BUYER", "SELLER"}, granted: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := Authorize(tt.principal, tt.required)
			if tt.granted {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestAuthorize_EmptyPrincipalRoles(t *testing.T) {
	t.Parallel()

	err := Authorize(nil, []string{"ADMIN"})
	assert.ErrorIs(t, err, ErrNoValidRoles)

	err = Authorize([]string{}, []string{"ADMIN"})
	assert.ErrorIs(t, err, ErrNoValidRoles)
}

func TestAuthorize_DeniedNamesBothSets(t *testing.T) {
	t.Parallel()

	err := Authorize([]string{"BUYER"}, []string{"ADMIN", "SELLER"})
	require.Error(t, err)

	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, []string{"BUYER"}, denied.PrincipalRoles)
	assert.Equal(t, []string{"ADMIN", "SELLER"}, denied.RequiredRoles)
	assert.Contains(t, err.Error(), "BUYER")
	assert.Contains(t, err.Error(), "ADMIN")
}
