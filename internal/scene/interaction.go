package scene

// SessionState is the interaction session's mode.
type SessionState int

const (
	// Idle: no active zone, action surface closed.
	Idle SessionState = iota
	// Engaged: a zone is active and its action surface is open.
	Engaged
)

// Session ties proximity transitions to action-surface visibility. The action
// surface is open exactly when a zone is active. The journal sub-view is
// independent of proximity: it survives Engaged -> Idle and closes only on an
// explicit close or a full dismiss.
type Session struct {
	state  SessionState
	active *Zone

	journalRepo string
}

func (s *Session) State() SessionState { return s.state }

func (s *Session) ActiveZone() *Zone { return s.active }

func (s *Session) ActionBarOpen() bool { return s.state == Engaged }

// JournalRepo returns the full name of the repo whose documentation view is
// open, or "" when closed.
func (s *Session) JournalRepo() string { return s.journalRepo }

// Apply consumes a proximity transition. Exit is handled before enter.
func (s *Session) Apply(tr Transition) {
	if tr.Exited != nil {
		s.state = Idle
		s.active = nil
	}
	if tr.Entered != nil {
		s.state = Engaged
		s.active = tr.Entered
	}
}

// Interact re-triggers the active zone's primary action. While engaged it
// toggles the action surface closed; the journal stays as-is.
func (s *Session) Interact() {
	if s.state != Engaged {
		return
	}
	s.state = Idle
	s.active = nil
}

// Dismiss is the explicit cancellation: it closes the action surface and
// force-closes the journal.
func (s *Session) Dismiss() {
	s.state = Idle
	s.active = nil
	s.journalRepo = ""
}

// OpenJournal opens the documentation view for the active zone's repo. A zone
// with no linked repo has nothing to show.
func (s *Session) OpenJournal() bool {
	if s.state != Engaged || s.active == nil || s.active.RepoFullName == "" {
		return false
	}
	s.journalRepo = s.active.RepoFullName
	return true
}

func (s *Session) CloseJournal() { s.journalRepo = "" }
