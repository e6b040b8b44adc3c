package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	fees "coaching-fees/internal/fees/domain"
)

// Store is an in-memory fee store. Every write method validates fully before
// mutating, so each call is all-or-nothing like its Postgres counterpart.
type Store struct {
	mu sync.RWMutex

	structures  map[string]fees.FeeStructure
	assignments map[string]fees.FeeAssignment
	records     map[string]fees.FeeRecord
	recordOrder []string
	payments    []fees.Payment
	refunds     []fees.Refund
	waivers     []fees.Waiver
	members     map[string]fees.Member
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		structures:  make(map[string]fees.FeeStructure),
		assignments: make(map[string]fees.FeeAssignment),
		records:     make(map[string]fees.FeeRecord),
		members:     make(map[string]fees.Member),
	}
}

func memberKey(coachingID, memberID string) string {
	return coachingID + "/" + memberID
}

// PutMember registers a roster member.
func (s *Store) PutMember(member fees.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[memberKey(member.CoachingID, member.ID)] = member
}

// GetMember returns a roster member.
func (s *Store) GetMember(ctx context.Context, coachingID, memberID string) (*fees.Member, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	member, ok := s.members[memberKey(coachingID, memberID)]
	if !ok {
		return nil, nil
	}
	return &member, nil
}

// GetStructure loads a structure with its live assignment count.
func (s *Store) GetStructure(ctx context.Context, coachingID, id string) (*fees.FeeStructure, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	structure, ok := s.structures[id]
	if !ok || structure.CoachingID != coachingID {
		return nil, nil
	}
	out := s.withCount(structure)
	return &out, nil
}

// ListStructures lists structures by name.
func (s *Store) ListStructures(ctx context.Context, coachingID string, includeInactive bool) ([]fees.FeeStructure, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fees.FeeStructure, 0)
	for _, structure := range s.structures {
		if structure.CoachingID != coachingID {
			continue
		}
		if !structure.IsActive && !includeInactive {
			continue
		}
		out = append(out, s.withCount(structure))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CreateStructure inserts a structure. Active names are unique per coaching.
func (s *Store) CreateStructure(ctx context.Context, structure fees.FeeStructure) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.structures[structure.ID]; ok {
		return fees.Conflict("fee structure %s already exists", structure.ID)
	}
	if err := s.checkNameFree(structure); err != nil {
		return err
	}
	s.structures[structure.ID] = cloneStructure(structure)
	return nil
}

// UpdateStructure replaces a structure when its version matches.
func (s *Store) UpdateStructure(ctx context.Context, structure fees.FeeStructure, expectedVersion int) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.structures[structure.ID]
	if !ok || current.CoachingID != structure.CoachingID {
		return fees.NotFound("fee structure", structure.ID)
	}
	if current.Version != expectedVersion {
		return fees.Conflict("fee structure %s was modified concurrently", structure.ID)
	}
	if err := s.checkNameFree(structure); err != nil {
		return err
	}
	structure.Version = expectedVersion + 1
	s.structures[structure.ID] = cloneStructure(structure)
	return nil
}

// DeleteStructure removes an unreferenced structure or deactivates a referenced one.
func (s *Store) DeleteStructure(ctx context.Context, coachingID, id string) (bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	structure, ok := s.structures[id]
	if !ok || structure.CoachingID != coachingID {
		return false, fees.NotFound("fee structure", id)
	}
	for _, a := range s.assignments {
		if a.FeeStructureID == id {
			structure.IsActive = false
			structure.UpdatedAt = time.Now().UTC()
			s.structures[id] = structure
			return true, nil
		}
	}
	delete(s.structures, id)
	return false, nil
}

func (s *Store) checkNameFree(structure fees.FeeStructure) error {
	if !structure.IsActive {
		return nil
	}
	for _, other := range s.structures {
		if other.ID == structure.ID || other.CoachingID != structure.CoachingID || !other.IsActive {
			continue
		}
		if strings.EqualFold(other.Name, structure.Name) {
			return fees.Conflict("an active fee structure named %q already exists", structure.Name)
		}
	}
	return nil
}

func (s *Store) withCount(structure fees.FeeStructure) fees.FeeStructure {
	out := cloneStructure(structure)
	out.AssignmentCount = 0
	for _, a := range s.assignments {
		if a.FeeStructureID == structure.ID && a.Status == fees.AssignmentActive {
			out.AssignmentCount++
		}
	}
	return out
}

// FindActiveAssignment returns the member's ACTIVE assignment for a concern.
func (s *Store) FindActiveAssignment(ctx context.Context, coachingID, memberID, concern string) (*fees.FeeAssignment, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	a := s.activeFor(coachingID, memberID, concern, "")
	if a == nil {
		return nil, nil
	}
	out := a.Clone()
	return &out, nil
}

// GetAssignment loads an assignment.
func (s *Store) GetAssignment(ctx context.Context, coachingID, id string) (*fees.FeeAssignment, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok || a.CoachingID != coachingID {
		return nil, nil
	}
	out := a.Clone()
	return &out, nil
}

// ListMemberAssignments lists a member's assignments, oldest first.
func (s *Store) ListMemberAssignments(ctx context.Context, coachingID, memberID string) ([]fees.FeeAssignment, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fees.FeeAssignment, 0)
	for _, a := range s.assignments {
		if a.CoachingID == coachingID && a.MemberID == memberID {
			out = append(out, a.Clone())
		}
	}
	sortAssignments(out)
	return out, nil
}

// ListBillableAssignments returns every ACTIVE assignment.
func (s *Store) ListBillableAssignments(ctx context.Context) ([]fees.FeeAssignment, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fees.FeeAssignment, 0)
	for _, a := range s.assignments {
		if a.Status == fees.AssignmentActive {
			out = append(out, a.Clone())
		}
	}
	sortAssignments(out)
	return out, nil
}

// CommitAssignment applies one member-atomic reassignment.
func (s *Store) CommitAssignment(ctx context.Context, commit fees.AssignmentCommit) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	next := commit.Assignment
	supersededID := ""
	if old := commit.Superseded; old != nil {
		current, ok := s.assignments[old.ID]
		if !ok || current.CoachingID != old.CoachingID {
			return fees.NotFound("fee assignment", old.ID)
		}
		if current.Version != commit.SupersededVersion || current.Status != fees.AssignmentActive {
			return fees.Conflict("assignment %s changed since preview", old.ID)
		}
		if err := s.verifyLive(old.ID, commit.ExpectedLive); err != nil {
			return err
		}
		supersededID = old.ID
	}
	if s.activeFor(next.CoachingID, next.MemberID, next.Concern, supersededID) != nil {
		return fees.Conflict("member %s already has an active %s assignment", next.MemberID, next.Concern)
	}
	if _, ok := s.assignments[next.ID]; ok {
		return fees.Conflict("fee assignment %s already exists", next.ID)
	}
	for _, w := range commit.Waivers {
		if _, ok := s.records[w.RecordID]; !ok {
			return fees.NotFound("fee record", w.RecordID)
		}
	}

	for _, w := range commit.Waivers {
		record := s.records[w.RecordID]
		record.WaivedAmount = record.WaivedAmount.Add(w.WaivedAmount)
		record.Status = fees.RecordWaived
		record.Version++
		record.UpdatedAt = w.WaivedAt
		s.records[record.ID] = record
		s.waivers = append(s.waivers, w)
	}
	if supersededID != "" {
		old := s.assignments[supersededID]
		old.Status = fees.AssignmentRemoved
		old.Version++
		old.UpdatedAt = commit.SupersededAt
		s.assignments[supersededID] = old
	}
	s.assignments[next.ID] = next.Clone()
	for _, record := range commit.Records {
		s.insertRecord(record)
	}
	return nil
}

// UpdateAssignment replaces an assignment when its version matches.
func (s *Store) UpdateAssignment(ctx context.Context, assignment fees.FeeAssignment, expectedVersion int) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAssignmentCAS(assignment, expectedVersion); err != nil {
		return err
	}
	assignment.Version = expectedVersion + 1
	s.assignments[assignment.ID] = assignment.Clone()
	return nil
}

// AppendRecords stores new cycle records with the advanced assignment.
func (s *Store) AppendRecords(ctx context.Context, assignment fees.FeeAssignment, expectedVersion int, records []fees.FeeRecord) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkAssignmentCAS(assignment, expectedVersion); err != nil {
		return err
	}
	for _, record := range records {
		if _, ok := s.records[record.ID]; ok {
			return fees.Conflict("fee record %s already exists", record.ID)
		}
	}
	assignment.Version = expectedVersion + 1
	s.assignments[assignment.ID] = assignment.Clone()
	for _, record := range records {
		s.insertRecord(record)
	}
	return nil
}

func (s *Store) checkAssignmentCAS(assignment fees.FeeAssignment, expectedVersion int) error {
	current, ok := s.assignments[assignment.ID]
	if !ok || current.CoachingID != assignment.CoachingID {
		return fees.NotFound("fee assignment", assignment.ID)
	}
	if current.Version != expectedVersion {
		return fees.Conflict("assignment %s was modified concurrently", assignment.ID)
	}
	if assignment.Status == fees.AssignmentActive &&
		s.activeFor(assignment.CoachingID, assignment.MemberID, assignment.Concern, assignment.ID) != nil {
		return fees.Conflict("member %s already has an active %s assignment", assignment.MemberID, assignment.Concern)
	}
	return nil
}

func (s *Store) verifyLive(assignmentID string, expected []fees.SettledRecord) error {
	current := make([]fees.SettledRecord, 0, len(expected))
	for _, id := range s.recordOrder {
		record := s.records[id]
		if record.AssignmentID == assignmentID && record.Status.Live() {
			current = append(current, record.Settled())
		}
	}
	return fees.VerifyLive(assignmentID, current, expected)
}

func (s *Store) activeFor(coachingID, memberID, concern, exceptID string) *fees.FeeAssignment {
	for id, a := range s.assignments {
		if id == exceptID {
			continue
		}
		if a.CoachingID == coachingID && a.MemberID == memberID && a.Concern == concern && a.Status == fees.AssignmentActive {
			return &a
		}
	}
	return nil
}

func (s *Store) insertRecord(record fees.FeeRecord) {
	if _, ok := s.records[record.ID]; !ok {
		s.recordOrder = append(s.recordOrder, record.ID)
	}
	s.records[record.ID] = record
}

// GetRecord loads a record.
func (s *Store) GetRecord(ctx context.Context, coachingID, id string) (*fees.FeeRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok || record.CoachingID != coachingID {
		return nil, nil
	}
	return &record, nil
}

// ListAssignmentRecords lists an assignment's records in creation order.
func (s *Store) ListAssignmentRecords(ctx context.Context, coachingID, assignmentID string) ([]fees.FeeRecord, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fees.FeeRecord, 0)
	for _, id := range s.recordOrder {
		record := s.records[id]
		if record.CoachingID == coachingID && record.AssignmentID == assignmentID {
			out = append(out, record)
		}
	}
	return out, nil
}

// LoadHistory returns every event of a member in creation order.
func (s *Store) LoadHistory(ctx context.Context, coachingID, memberID string) (fees.History, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var history fees.History
	for _, id := range s.recordOrder {
		record := s.records[id]
		if record.CoachingID == coachingID && record.MemberID == memberID {
			history.Records = append(history.Records, record)
		}
	}
	for _, p := range s.payments {
		if p.CoachingID == coachingID && p.MemberID == memberID {
			history.Payments = append(history.Payments, p)
		}
	}
	for _, r := range s.refunds {
		if r.CoachingID == coachingID && r.MemberID == memberID {
			history.Refunds = append(history.Refunds, r)
		}
	}
	for _, w := range s.waivers {
		if w.CoachingID == coachingID && w.MemberID == memberID {
			history.Waivers = append(history.Waivers, w)
		}
	}
	return history, nil
}

// GetPayment loads a payment.
func (s *Store) GetPayment(ctx context.Context, coachingID, id string) (*fees.Payment, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.ID == id && p.CoachingID == coachingID {
			out := p
			return &out, nil
		}
	}
	return nil, nil
}

// ListPaymentRefunds lists refunds of a payment.
func (s *Store) ListPaymentRefunds(ctx context.Context, coachingID, paymentID string) ([]fees.Refund, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]fees.Refund, 0)
	for _, r := range s.refunds {
		if r.CoachingID == coachingID && r.PaymentID == paymentID {
			out = append(out, r)
		}
	}
	return out, nil
}

// SaveRecordMutation updates a record and appends its causing event.
func (s *Store) SaveRecordMutation(ctx context.Context, mutation fees.RecordMutation) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	record := mutation.Record
	current, ok := s.records[record.ID]
	if !ok || current.CoachingID != record.CoachingID {
		return fees.NotFound("fee record", record.ID)
	}
	if current.Version != mutation.ExpectedVersion {
		return fees.Conflict("record %s was modified concurrently", record.ID)
	}
	if p := mutation.Payment; p != nil {
		for _, existing := range s.payments {
			if existing.ID == p.ID || existing.ReceiptNo == p.ReceiptNo {
				return fees.Conflict("payment %s already recorded", p.ID)
			}
		}
	}
	record.Version = mutation.ExpectedVersion + 1
	s.records[record.ID] = record
	if mutation.Payment != nil {
		s.payments = append(s.payments, *mutation.Payment)
	}
	if mutation.Refund != nil {
		s.refunds = append(s.refunds, *mutation.Refund)
	}
	if mutation.Waiver != nil {
		s.waivers = append(s.waivers, *mutation.Waiver)
	}
	return nil
}

func sortAssignments(list []fees.FeeAssignment) {
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
}

func cloneStructure(s fees.FeeStructure) fees.FeeStructure {
	out := s
	out.LineItems = append([]fees.LineItem(nil), s.LineItems...)
	out.Installments.Fixed = append([]fees.Installment(nil), s.Installments.Fixed...)
	return out
}
