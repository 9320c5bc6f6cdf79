package session

// PendingLen exposes the pending table size to external tests.
func (s *Session) PendingLen() int {
	return s.pending.size()
}

// DedupLen exposes the dedup size to external tests.
func (s *Session) DedupLen() int {
	if s.dedup == nil {
		return 0
	}
	return s.dedup.Len()
}
