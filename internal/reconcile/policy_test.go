package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr error
	}{
		{name: "default", policy: DefaultPolicy()},
		{name: "directory wins", policy: Policy{DirectoryAlwaysWins: true}},
		{name: "both win", policy: Policy{DirectoryAlwaysWins: true, LocalAlwaysWins: true}, wantErr: errBothAlwaysWin},
		{name: "both all changes", policy: Policy{AllChangesFromDirectory: true, AllChangesFromLocal: true}, wantErr: errBothAllChangesFrom},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSideKind(t *testing.T) {
	assert.Equal(t, Local, Directory.Other())
	assert.Equal(t, Directory, Local.Other())
	assert.Equal(t, "Directory", Directory.String())
	assert.Equal(t, "Local", Local.String())
}

func TestScope(t *testing.T) {
	s := Scope{Include: []string{"4*", "7"}, Exclude: []string{"45"}}
	assert.NoError(t, s.Validate())

	assert.True(t, s.Contains("42"))
	assert.True(t, s.Contains("7"))
	assert.False(t, s.Contains("45"))
	assert.False(t, s.Contains("8"))

	assert.True(t, Scope{}.Contains("anything"))
	assert.Error(t, Scope{Include: []string{"[a-"}}.Validate())
}
