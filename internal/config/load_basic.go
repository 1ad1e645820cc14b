// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"grimm.is/synguard/internal/errors"
)

// LoadFile reads, defaults and validates the configuration at path.
// An empty path yields the defaults.
func LoadFile(path string) (*Config, error) {
	if path == "" {
		return Defaults(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Attr(errors.Wrap(err, errors.KindNotFound, "configuration file not found"), "path", path)
		}
		return nil, errors.Attr(errors.Wrap(err, errors.KindUnavailable, "failed to read config file"), "path", path)
	}
	return Parse(data, path)
}

// Parse decodes configuration bytes onto the defaults, so an attribute
// that is present always reaches Validate, even when it is zero. Files
// ending in .json use HCL's JSON syntax; everything else is native HCL.
func Parse(data []byte, filename string) (*Config, error) {
	parser := hclparse.NewParser()

	var (
		file  *hcl.File
		diags hcl.Diagnostics
	)
	if strings.EqualFold(filepath.Ext(filename), ".json") {
		file, diags = parser.ParseJSON(data, filename)
	} else {
		file, diags = parser.ParseHCL(data, filename)
	}
	if diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "failed to parse config")
	}

	cfg := Defaults()
	if diags := gohcl.DecodeBody(file.Body, nil, cfg); diags.HasErrors() {
		return nil, errors.Wrap(diags, errors.KindValidation, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
