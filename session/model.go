package session

// Impersonation binds an admin session to a target account. Data access
// resolves against TargetID while audit attributes AdminID.
type Impersonation struct {
	AdminID    string
	TargetID   string
	TargetRole string
	StartedAt  int64
}

type Session struct {
	ID        string
	AccountID string
	Role      string

	MFAVerified  bool
	SetupPending bool

	Impersonation *Impersonation

	CreatedAt int64
	ExpiresAt int64
}

// SubjectID is the account whose data the session acts on.
func (s *Session) SubjectID() string {
	if s.Impersonation != nil {
		return s.Impersonation.TargetID
	}
	return s.AccountID
}

// ActorID is the account that is really behind the keyboard.
func (s *Session) ActorID() string {
	if s.Impersonation != nil {
		return s.Impersonation.AdminID
	}
	return s.AccountID
}

// SubjectRole is the role data access should be evaluated under.
func (s *Session) SubjectRole() string {
	if s.Impersonation != nil {
		return s.Impersonation.TargetRole
	}
	return s.Role
}

func (s *Session) Impersonating() bool {
	return s.Impersonation != nil
}
