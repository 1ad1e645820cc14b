// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package geoip annotates flooder addresses with their country from a
// MaxMind GeoIP2/GeoLite2 country (or city) database.
package geoip

import (
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"

	"grimm.is/synguard/internal/errors"
	"grimm.is/synguard/internal/netutil"
)

// DB is an open country database.
type DB struct {
	path   string
	reader *geoip2.Reader
}

// Open memory-maps the database at path.
func Open(path string) (*DB, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		kind := errors.KindValidation
		switch {
		case os.IsNotExist(err):
			kind = errors.KindNotFound
		case os.IsPermission(err):
			kind = errors.KindPermission
		}
		return nil, errors.Attr(errors.Wrap(err, kind, "failed to open GeoIP database"), "path", path)
	}
	return &DB{path: path, reader: r}, nil
}

// Path returns the database location.
func (db *DB) Path() string { return db.path }

// Country returns the ISO 3166-1 code for addr, or "" when unknown.
func (db *DB) Country(addr netutil.IPv4) string {
	rec, err := db.reader.Country(net.IP(addr.Addr().AsSlice()))
	if err != nil {
		return ""
	}
	return rec.Country.IsoCode
}

func (db *DB) Close() error {
	return db.reader.Close()
}
