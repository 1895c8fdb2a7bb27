// Package kb implements the client for the upstream knowledge-base API that
// lists an institution's collections and their resource inventories.
package kb

import "encoding/json"

// Collection identifies one institution-enabled collection.
type Collection struct {
	// ID is the collection's knowledge-base identifier.
	ID string
	// Title is the collection's display title.
	Title string
	// DownloadLink points to a tab-delimited inventory of the collection.
	DownloadLink string
}

// IsEmpty reports whether the collection has no downloadable inventory.
func (c Collection) IsEmpty() bool {
	return c.DownloadLink == ""
}

// Resource is one link-bearing item within a collection.
type Resource struct {
	// CollectionID is the identifier of the holding collection.
	CollectionID string
	// ResourceID is the resource's knowledge-base identifier.
	ResourceID string
	// Title is the resource's publication title.
	Title string
	// Link is the URL of the online resource.
	Link string
}

// IsEmpty reports whether the resource has no accessible link.
func (r Resource) IsEmpty() bool {
	return r.Link == ""
}

// searchResult mirrors the JSON envelope of the collection search endpoint.
type searchResult struct {
	TotalResults json.Number `json:"os:totalResults"`
	Entries      []entry     `json:"entries"`
}

type entry struct {
	UID   string      `json:"kb:collection_uid"`
	Title string      `json:"title"`
	Links []entryLink `json:"links"`
}

type entryLink struct {
	Rel  string `json:"rel"`
	Href string `json:"href"`
}

func (e entry) enclosure() string {
	for _, link := range e.Links {
		if link.Rel == "enclosure" {
			return link.Href
		}
	}
	return ""
}
