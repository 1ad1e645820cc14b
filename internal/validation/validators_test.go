// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"grimm.is/synguard/internal/errors"
)

func TestValidateSetName(t *testing.T) {
	for _, ok := range []string{"synflood", "syn_abusers", "bl-v4", "a.b"} {
		assert.NoError(t, ValidateSetName(ok), ok)
	}
	for _, bad := range []string{"", "syn flood", "x;rm -rf /", "$(id)", strings.Repeat("a", 32)} {
		err := ValidateSetName(bad)
		if assert.Error(t, err, bad) {
			assert.Equal(t, errors.KindValidation, errors.GetKind(err))
		}
	}
	assert.NoError(t, ValidateSetName(strings.Repeat("a", 31)))
}

func TestValidateTableName(t *testing.T) {
	assert.NoError(t, ValidateTableName("filter"))
	assert.NoError(t, ValidateTableName(strings.Repeat("t", 255)))
	assert.Error(t, ValidateTableName(strings.Repeat("t", 256)))
}

func TestValidateAllowlist(t *testing.T) {
	assert.NoError(t, ValidateAllowlist("inet", []string{"inet", "ip"}))
	err := ValidateAllowlist("arp", []string{"inet", "ip"})
	assert.EqualError(t, err, `"arp" is not one of: inet, ip`)
}
