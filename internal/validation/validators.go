// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package validation checks names that end up on a command line or in a
// netlink message.
package validation

import (
	"regexp"
	"strings"

	"grimm.is/synguard/internal/errors"
)

const (
	// MaxSetNameLen is IPSET_MAXNAMELEN without the terminating NUL.
	MaxSetNameLen = 31
	// MaxTableNameLen is NFT_NAME_MAXLEN without the terminating NUL.
	MaxTableNameLen = 255
)

var (
	identifierRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

	// Characters that must never reach a shell or tool argument.
	dangerousChars = []string{";", "|", "&", "$", "`", "(", ")", "<", ">", "\\", "\"", "'", "\n", "\r"}
)

// ValidateIdentifier checks a set, table or chain name.
func ValidateIdentifier(id string, maxLen int) error {
	if id == "" {
		return errors.New(errors.KindValidation, "identifier cannot be empty")
	}
	if len(id) > maxLen {
		return errors.Errorf(errors.KindValidation, "identifier too long (max %d characters): %s", maxLen, id)
	}
	for _, char := range dangerousChars {
		if strings.Contains(id, char) {
			return errors.Errorf(errors.KindValidation, "identifier contains dangerous character: %q", char)
		}
	}
	if !identifierRegex.MatchString(id) {
		return errors.Errorf(errors.KindValidation, "invalid identifier: %s (must be alphanumeric with -_.)", id)
	}
	return nil
}

// ValidateSetName checks an ipset or nftables set name.
func ValidateSetName(name string) error {
	return ValidateIdentifier(name, MaxSetNameLen)
}

// ValidateTableName checks an nftables table name.
func ValidateTableName(name string) error {
	return ValidateIdentifier(name, MaxTableNameLen)
}

// ValidateAllowlist checks if a value is in an allowed list.
func ValidateAllowlist(value string, allowed []string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return errors.Errorf(errors.KindValidation, "%q is not one of: %s", value, strings.Join(allowed, ", "))
}
