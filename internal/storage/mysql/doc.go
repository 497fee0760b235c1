// Package mysql opens the shared MySQL connection pool and applies the
// embedded schema migrations from deploy/migrations. Domain packages own
// their own MySQL stores and only borrow the *sql.DB handle from here.
package mysql
