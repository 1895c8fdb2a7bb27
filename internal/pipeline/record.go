package pipeline

import (
	"strconv"

	"github.com/atoombs-lib/kb-linkcheck/internal/kb"
	"github.com/atoombs-lib/kb-linkcheck/internal/store"
)

// Column layouts for the two on-disk caches. Both stores share the first four
// columns; the results store adds the observed status code.
var (
	ResourceHeader = []string{"cid", "rid", "title", "link"}
	ResultHeader   = []string{"cid", "rid", "title", "link", "code"}
)

func resourceRecord(r kb.Resource) store.Record {
	return store.Record{r.CollectionID, r.ResourceID, r.Title, r.Link}
}

func resourceFromRecord(rec store.Record) kb.Resource {
	r := kb.Resource{}
	if len(rec) > 0 {
		r.CollectionID = rec[0]
	}
	if len(rec) > 1 {
		r.ResourceID = rec[1]
	}
	if len(rec) > 2 {
		r.Title = rec[2]
	}
	if len(rec) > 3 {
		r.Link = rec[3]
	}
	return r
}

func resultRecord(r kb.Resource, statusCode int) store.Record {
	return store.Record{r.CollectionID, r.ResourceID, r.Title, r.Link, strconv.Itoa(statusCode)}
}

// resultFromRecord returns the resource plus its recorded status code. A
// missing or mangled code column reads as the sentinel so the analysis stage
// counts the link as broken rather than silently passing it.
func resultFromRecord(rec store.Record) (kb.Resource, int) {
	r := resourceFromRecord(rec)
	if len(rec) < 5 {
		return r, -1
	}
	code, err := strconv.Atoi(rec[4])
	if err != nil {
		return r, -1
	}
	return r, code
}
