package credential

import "github.com/google/uuid"

// relevant picks, per document type, the most recently decided submission.
// Pending submissions never count.
func relevant(subs []Submission) map[uuid.UUID]Submission {
	out := make(map[uuid.UUID]Submission)
	for _, s := range subs {
		if s.State == StatePending || s.DecidedAt == nil {
			continue
		}
		cur, ok := out[s.DocumentTypeID]
		if !ok || decidedAfter(s, cur) {
			out[s.DocumentTypeID] = s
		}
	}
	return out
}

// decidedAfter orders decisions by their sequence number. Timestamps only
// break ties between submissions that carry no sequence.
func decidedAfter(a, b Submission) bool {
	if a.DecisionSeq != b.DecisionSeq {
		return a.DecisionSeq > b.DecisionSeq
	}
	if !a.DecidedAt.Equal(*b.DecidedAt) {
		return a.DecidedAt.After(*b.DecidedAt)
	}
	return a.SubmittedAt.After(b.SubmittedAt)
}

// Aggregate computes a physician's validation state from the required
// document types and every submission the physician made.
//
// Approved when every required type's relevant submission is approved.
// Rejected when a required type's relevant submission was rejected with the
// reject-physician flag, or when the physician was already rejected.
// Pending otherwise.
func Aggregate(current State, required []DocumentType, subs []Submission) (State, int) {
	rel := relevant(subs)

	approved := 0
	flagged := false
	for _, dt := range required {
		s, ok := rel[dt.ID]
		if !ok {
			continue
		}
		switch s.State {
		case StateApproved:
			approved++
		case StateRejected:
			if s.RejectPhysician {
				flagged = true
			}
		}
	}

	switch {
	case approved == len(required):
		return StateApproved, approved
	case flagged, current == StateRejected:
		return StateRejected, approved
	default:
		return StatePending, approved
	}
}

func summarize(p Physician, required []DocumentType, subs []Submission) Status {
	_, approved := Aggregate(p.State, required, subs)
	st := Status{
		PhysicianID:   p.ID,
		State:         p.State,
		RequiredCount: len(required),
		ApprovedCount: approved,
		Submitted:     len(subs),
		Missing:       []uuid.UUID{},
	}
	rel := relevant(subs)
	for _, s := range subs {
		switch s.State {
		case StatePending:
			st.Pending++
		case StateRejected:
			st.Rejected++
		}
	}
	for _, dt := range required {
		if s, ok := rel[dt.ID]; !ok || s.State != StateApproved {
			st.Missing = append(st.Missing, dt.ID)
		}
	}
	return st
}
