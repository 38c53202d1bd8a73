package domain

import "time"

type CacheStatus int

const (
	StatusPending CacheStatus = iota
	StatusReady
	StatusStale
	StatusError
)

func (s CacheStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusReady:
		return "ready"
	case StatusStale:
		return "stale"
	default:
		return "error"
	}
}

// Page is an ordered slice of records plus the cursor that fetches the page after it.
type Page struct {
	Records []Record
	Cursor  string
}

// CacheEntry is one cached query result. Paginated resources use Pages,
// single-resource queries use Data. Record ids are unique across all pages.
type CacheEntry struct {
	Key       QueryKey
	Status    CacheStatus
	Pages     []Page
	Data      Record
	Err       string
	UpdatedAt time.Time
	// Gen is the store's write generation for this entry; it changes on every
	// Set, effective Patch and Invalidate.
	Gen uint64
}

func (e *CacheEntry) Contains(id string) bool {
	return e.indexOf(id) >= 0
}

func (e *CacheEntry) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for p := range e.Pages {
		for i := range e.Pages[p].Records {
			if e.Pages[p].Records[i].ID() == id {
				return p
			}
		}
	}
	return -1
}

// AppendRecord appends r to the most recently fetched page unless its id is
// already cached. The page cursor is left untouched. An entry still waiting
// for its first page only accepts records while Pending, so a fetch in
// flight can merge them in.
func (e *CacheEntry) AppendRecord(r Record) bool {
	if r.ID() == "" || e.Contains(r.ID()) {
		return false
	}
	if len(e.Pages) == 0 {
		if e.Status != StatusPending {
			return false
		}
		e.Pages = []Page{{}}
	}
	last := len(e.Pages) - 1
	e.Pages[last].Records = append(e.Pages[last].Records, r)
	return true
}

// AppendPage adds a freshly fetched page, dropping records whose id is
// already cached. It returns the number of records kept.
func (e *CacheEntry) AppendPage(p Page) int {
	seen := make(map[string]struct{})
	for _, r := range e.Records() {
		seen[r.ID()] = struct{}{}
	}
	kept := make([]Record, 0, len(p.Records))
	for _, r := range p.Records {
		id := r.ID()
		if id == "" {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		kept = append(kept, r)
	}
	e.Pages = append(e.Pages, Page{Records: kept, Cursor: p.Cursor})
	return len(kept)
}

// RemoveRecord drops the record with id from every page.
func (e *CacheEntry) RemoveRecord(id string) bool {
	removed := false
	for p := range e.Pages {
		recs := e.Pages[p].Records[:0]
		for _, r := range e.Pages[p].Records {
			if r.ID() == id {
				removed = true
				continue
			}
			recs = append(recs, r)
		}
		e.Pages[p].Records = recs
	}
	return removed
}

// UpdateRecord applies fn to every record with id and reports whether one matched.
func (e *CacheEntry) UpdateRecord(id string, fn func(Record)) bool {
	found := false
	for p := range e.Pages {
		for i := range e.Pages[p].Records {
			if e.Pages[p].Records[i].ID() == id {
				fn(e.Pages[p].Records[i])
				found = true
			}
		}
	}
	return found
}

// Records flattens all pages in page order.
func (e *CacheEntry) Records() []Record {
	var out []Record
	for _, p := range e.Pages {
		out = append(out, p.Records...)
	}
	return out
}

// IDs returns the set of record ids across all pages.
func (e *CacheEntry) IDs() map[string]struct{} {
	out := make(map[string]struct{})
	for _, p := range e.Pages {
		for _, r := range p.Records {
			if id := r.ID(); id != "" {
				out[id] = struct{}{}
			}
		}
	}
	return out
}

func (e *CacheEntry) LastCursor() string {
	if len(e.Pages) == 0 {
		return ""
	}
	return e.Pages[len(e.Pages)-1].Cursor
}

func (e CacheEntry) Clone() CacheEntry {
	out := e
	out.Key = e.Key.clone()
	out.Data = e.Data.Clone()
	if e.Pages != nil {
		out.Pages = make([]Page, len(e.Pages))
		for i, p := range e.Pages {
			recs := make([]Record, len(p.Records))
			for j, r := range p.Records {
				recs[j] = r.Clone()
			}
			out.Pages[i] = Page{Records: recs, Cursor: p.Cursor}
		}
	}
	return out
}
