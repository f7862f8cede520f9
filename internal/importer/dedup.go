package importer

// trackSet deduplicates tracks by the catalog provider's track id before any
// upsert is issued. The same logical track is often reachable through both
// the top-tracks listing and an album listing; first seen wins.
type trackSet struct {
	seen map[string]struct{}
}

func newTrackSet() *trackSet {
	return &trackSet{seen: make(map[string]struct{})}
}

// Add reports true the first time an id is seen, false for duplicates and
// empty ids.
func (s *trackSet) Add(catalogID string) bool {
	if catalogID == "" {
		return false
	}
	if _, ok := s.seen[catalogID]; ok {
		return false
	}
	s.seen[catalogID] = struct{}{}
	return true
}

// Len returns how many distinct tracks were accepted.
func (s *trackSet) Len() int { return len(s.seen) }
