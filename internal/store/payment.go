package store

import "github.com/rickgao/escrow-realtime/internal/model"

// PaymentStatus returns the last known payment status.
func (s *Store) PaymentStatus() (model.PaymentStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.payment == nil {
		return model.PaymentStatus{}, false
	}
	return *s.payment, true
}

// SetPaymentStatus overwrites the payment status.
func (s *Store) SetPaymentStatus(p model.PaymentStatus) {
	s.mu.Lock()
	s.payment = &p
	change := s.bumpLocked(ChangePayment, 0)
	s.mu.Unlock()

	s.notifyChange(change)
}

// ProjectStatus returns the last known project status.
func (s *Store) ProjectStatus() (model.ProjectStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.project == nil {
		return model.ProjectStatus{}, false
	}
	return *s.project, true
}

// SetProjectStatus overwrites the project status.
func (s *Store) SetProjectStatus(p model.ProjectStatus) {
	s.mu.Lock()
	s.project = &p
	change := s.bumpLocked(ChangeProject, p.ProjectID)
	s.mu.Unlock()

	s.notifyChange(change)
}

// ClearPayment forgets payment and project status.
func (s *Store) ClearPayment() {
	s.mu.Lock()
	if s.payment == nil && s.project == nil {
		s.mu.Unlock()
		return
	}
	s.payment = nil
	s.project = nil
	change := s.bumpLocked(ChangePayment, 0)
	s.mu.Unlock()

	s.notifyChange(change)
}
