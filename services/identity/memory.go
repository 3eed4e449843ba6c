package identitysvc

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
)

// Invitation is an invitation recorded by the MemoryProvider.
type Invitation struct {
	OrgID       string
	Email       string
	Role        string
	RedirectURL string
}

// MemoryProvider is an in-process identity provider, used in DEV mode and tests.
type MemoryProvider struct {
	mu          sync.RWMutex
	orgs        map[string]string                          // {orgID: slug}
	users       map[string]core.IdentityUser               // {userID: user}
	memberships map[string]map[string]core.OrgMembership   // {orgID: {userID: membership}}
	invitations []Invitation

	// FailingEmails makes every call concerning these emails fail; FailRoleUpdates rejects UpdateMembershipRole.
	FailingEmails   map[string]error
	FailRoleUpdates bool
}

var _ core.IdentityProvider = (*MemoryProvider)(nil)

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		orgs:          make(map[string]string),
		users:         make(map[string]core.IdentityUser),
		memberships:   make(map[string]map[string]core.OrgMembership),
		FailingEmails: make(map[string]error),
	}
}

func newID(prefix string) string {
	return prefix + "_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:24]
}

// AddUser registers a user account, as if they had signed up.
func (p *MemoryProvider) AddUser(email, firstName, lastName string) core.IdentityUser {
	p.mu.Lock()
	defer p.mu.Unlock()

	usr := core.IdentityUser{ID: newID("user"), Email: strings.ToLower(email), FirstName: firstName, LastName: lastName}
	p.users[usr.ID] = usr
	return usr
}

// AddOrganization registers an existing organization.
func (p *MemoryProvider) AddOrganization(orgID, slug string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.orgs[orgID] = slug
}

func (p *MemoryProvider) Invitations() []Invitation {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Invitation(nil), p.invitations...)
}

// Role returns the role held by userID in orgID ("" if not a member).
func (p *MemoryProvider) Role(orgID, userID string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.memberships[orgID][userID].Role
}

func (p *MemoryProvider) failure(email string) error {
	if err, ok := p.FailingEmails[strings.ToLower(email)]; ok {
		return err
	}
	return nil
}

func (p *MemoryProvider) userFailure(userID string) error {
	if usr, ok := p.users[userID]; ok {
		return p.failure(usr.Email)
	}
	return nil
}

func (p *MemoryProvider) CreateOrganization(_ context.Context, _, slug string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, s := range p.orgs {
		if s == slug {
			return "", errors.Wrap(core.ErrIdentityConflict, "organization slug")
		}
	}
	id := newID("org")
	p.orgs[id] = slug
	return id, nil
}

func (p *MemoryProvider) DeleteOrganization(_ context.Context, orgID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.orgs[orgID]; !ok {
		return core.ErrIdentityNotFound
	}
	delete(p.orgs, orgID)
	delete(p.memberships, orgID)
	return nil
}

func (p *MemoryProvider) GetUser(_ context.Context, userID string) (core.IdentityUser, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if usr, ok := p.users[userID]; ok {
		return usr, nil
	}
	return core.IdentityUser{}, core.ErrIdentityNotFound
}

func (p *MemoryProvider) FindUserByEmail(_ context.Context, email string) (core.IdentityUser, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if err := p.failure(email); err != nil {
		return core.IdentityUser{}, err
	}
	email = strings.ToLower(email)
	for _, usr := range p.users {
		if usr.Email == email {
			return usr, nil
		}
	}
	return core.IdentityUser{}, core.ErrIdentityNotFound
}

func (p *MemoryProvider) GetMembership(_ context.Context, orgID, userID string) (core.OrgMembership, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if m, ok := p.memberships[orgID][userID]; ok {
		return m, nil
	}
	return core.OrgMembership{}, core.ErrIdentityNotFound
}

func (p *MemoryProvider) CreateMembership(_ context.Context, orgID, userID, role string) (core.OrgMembership, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.userFailure(userID); err != nil {
		return core.OrgMembership{}, err
	}
	if _, ok := p.memberships[orgID][userID]; ok {
		return core.OrgMembership{}, core.ErrIdentityConflict
	}
	if p.memberships[orgID] == nil {
		p.memberships[orgID] = make(map[string]core.OrgMembership)
	}
	m := core.OrgMembership{ID: newID("orgmem"), OrgID: orgID, UserID: userID, Role: role}
	p.memberships[orgID][userID] = m
	return m, nil
}

func (p *MemoryProvider) UpdateMembershipRole(_ context.Context, orgID, userID, role string) (core.OrgMembership, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.FailRoleUpdates {
		return core.OrgMembership{}, errors.New("identity: role update rejected")
	}
	m, ok := p.memberships[orgID][userID]
	if !ok {
		return core.OrgMembership{}, core.ErrIdentityNotFound
	}
	m.Role = role
	p.memberships[orgID][userID] = m
	return m, nil
}

func (p *MemoryProvider) DeleteMembership(_ context.Context, orgID, userID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.memberships[orgID][userID]; !ok {
		return core.ErrIdentityNotFound
	}
	delete(p.memberships[orgID], userID)
	return nil
}

func (p *MemoryProvider) CreateInvitation(_ context.Context, orgID, email, role, redirectURL string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.failure(email); err != nil {
		return err
	}
	email = strings.ToLower(email)
	for _, inv := range p.invitations {
		if inv.OrgID == orgID && inv.Email == email {
			return core.ErrIdentityConflict
		}
	}
	p.invitations = append(p.invitations, Invitation{OrgID: orgID, Email: email, Role: role, RedirectURL: redirectURL})
	return nil
}
