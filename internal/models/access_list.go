package models

import "time"

// ListType names an access list
type ListType string

const (
	// ListAny matches membership in either list when used as a lookup filter
	ListAny       ListType = ""
	ListWhitelist ListType = "whitelist"
	ListBlacklist ListType = "blacklist"
)

// Valid reports whether t names a concrete list
func (t ListType) Valid() bool {
	return t == ListWhitelist || t == ListBlacklist
}

// AccessListEntry records membership of a client key in a list.
// At most one entry exists per (ClientKey, ListType).
type AccessListEntry struct {
	ClientKey string    `db:"client_key" json:"client_key"`
	ListType  ListType  `db:"list_type" json:"list_type"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
