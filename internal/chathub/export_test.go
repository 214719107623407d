package chathub

// MembersOf reports how many local sessions are indexed under roomID.
func (m *ManagerService) MembersOf(roomID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.members[roomID])
}
