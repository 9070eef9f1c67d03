// Package migrations ships the booking schema with the binary.
package migrations

import _ "embed"

//go:embed 0001_booking.sql
var Postgres string
