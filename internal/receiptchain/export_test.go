package receiptchain

// Tamper rewrites the stored link at seq in place without re-hashing.
func (s *MemoryStore) Tamper(seq int64, fn func(*Link)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.links[seq].clone()
	fn(l)
	s.links[seq] = l
}

// Replace swaps the stored link at seq for forged.
func (s *MemoryStore) Replace(seq int64, forged *Link) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.links[seq]
	delete(s.byID, old.ReceiptID())
	delete(s.byCode, old.ShortCode())
	forged = forged.clone()
	forged.Sequence = seq
	s.links[seq] = forged
	s.byID[forged.ReceiptID()] = seq
	s.byCode[forged.ShortCode()] = seq
}

// Excise deletes the link at seq and renumbers its successors so the
// ledger stays contiguous, the way a row deletion plus compaction would.
func (s *MemoryStore) Excise(seq int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.links[seq]
	delete(s.byID, removed.ReceiptID())
	delete(s.byCode, removed.ShortCode())
	s.links = append(s.links[:seq:seq], s.links[seq+1:]...)
	for i := seq; i < int64(len(s.links)); i++ {
		l := s.links[i].clone()
		l.Sequence = i
		s.links[i] = l
		s.byID[l.ReceiptID()] = i
		s.byCode[l.ShortCode()] = i
	}
}
