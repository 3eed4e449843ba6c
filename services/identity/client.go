// Package identitysvc talks to the identity provider owning users, organizations and memberships.
package identitysvc

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
)

type (
	Client struct {
		rc *resty.Client
	}

	apiError struct {
		Errors []struct {
			Message     string `json:"message"`
			LongMessage string `json:"long_message"`
			Code        string `json:"code"`
		} `json:"errors"`
	}

	apiEmailAddress struct {
		ID           string `json:"id"`
		EmailAddress string `json:"email_address"`
	}

	apiUser struct {
		ID                    string            `json:"id"`
		FirstName             string            `json:"first_name"`
		LastName              string            `json:"last_name"`
		PrimaryEmailAddressID string            `json:"primary_email_address_id"`
		EmailAddresses        []apiEmailAddress `json:"email_addresses"`
	}

	apiOrganization struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Slug string `json:"slug"`
	}

	apiMembership struct {
		ID           string `json:"id"`
		Role         string `json:"role"`
		Organization struct {
			ID string `json:"id"`
		} `json:"organization"`
		PublicUserData struct {
			UserID string `json:"user_id"`
		} `json:"public_user_data"`
	}

	apiMembershipList struct {
		Data       []apiMembership `json:"data"`
		TotalCount int             `json:"total_count"`
	}
)

var _ core.IdentityProvider = (*Client)(nil)

func NewClient(conf core.IdentityConfig) *Client {
	rc := resty.New().
		SetBaseURL(conf.BaseURL).
		SetAuthToken(conf.SecretKey).
		SetTimeout(conf.Timeout).
		SetRetryCount(conf.Retries).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError
		})
	return &Client{rc: rc}
}

func (e *apiError) message() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msg := err.LongMessage
		if msg == "" {
			msg = err.Message
		}
		msgs = append(msgs, msg)
	}
	return strings.Join(msgs, "; ")
}

func (e *apiError) isConflict() bool {
	for _, err := range e.Errors {
		code := strings.ToLower(err.Code)
		if strings.Contains(code, "already") || strings.Contains(code, "duplicate") || strings.Contains(code, "exists") {
			return true
		}
	}
	return false
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, result interface{}) error {
	apiErr := new(apiError)
	req := c.rc.R().SetContext(ctx).SetError(apiErr)
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	if result != nil {
		req.SetResult(result)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return errors.Wrapf(err, "identity: %s %s", method, path)
	}
	if !resp.IsError() {
		return nil
	}

	switch code := resp.StatusCode(); {
	case code == http.StatusNotFound:
		return errors.Wrapf(core.ErrIdentityNotFound, "%s %s", method, path)
	case code == http.StatusConflict || (code < http.StatusInternalServerError && apiErr.isConflict()):
		return errors.Wrapf(core.ErrIdentityConflict, "%s %s: %s", method, path, apiErr.message())
	default:
		return fmt.Errorf("identity: %s %s: %d %s", method, path, code, apiErr.message())
	}
}

func (u apiUser) toIdentityUser() core.IdentityUser {
	usr := core.IdentityUser{ID: u.ID, FirstName: u.FirstName, LastName: u.LastName}
	for _, e := range u.EmailAddresses {
		if usr.Email == "" || e.ID == u.PrimaryEmailAddressID {
			usr.Email = strings.ToLower(e.EmailAddress)
		}
	}
	return usr
}

func (m apiMembership) toOrgMembership(orgID string) core.OrgMembership {
	ms := core.OrgMembership{ID: m.ID, OrgID: m.Organization.ID, UserID: m.PublicUserData.UserID, Role: m.Role}
	if ms.OrgID == "" {
		ms.OrgID = orgID
	}
	return ms
}

func (c *Client) CreateOrganization(ctx context.Context, name, slug string) (string, error) {
	var org apiOrganization
	body := map[string]string{"name": name, "slug": slug}
	if err := c.do(ctx, http.MethodPost, "/organizations", nil, body, &org); err != nil {
		return "", err
	}
	return org.ID, nil
}

func (c *Client) DeleteOrganization(ctx context.Context, orgID string) error {
	return c.do(ctx, http.MethodDelete, "/organizations/"+url.PathEscape(orgID), nil, nil, nil)
}

func (c *Client) GetUser(ctx context.Context, userID string) (core.IdentityUser, error) {
	var usr apiUser
	if err := c.do(ctx, http.MethodGet, "/users/"+url.PathEscape(userID), nil, nil, &usr); err != nil {
		return core.IdentityUser{}, err
	}
	return usr.toIdentityUser(), nil
}

func (c *Client) FindUserByEmail(ctx context.Context, email string) (core.IdentityUser, error) {
	var users []apiUser
	q := url.Values{"email_address": {email}, "limit": {"1"}}
	if err := c.do(ctx, http.MethodGet, "/users", q, nil, &users); err != nil {
		return core.IdentityUser{}, err
	}
	if len(users) == 0 {
		return core.IdentityUser{}, errors.Wrap(core.ErrIdentityNotFound, email)
	}
	return users[0].toIdentityUser(), nil
}

func (c *Client) GetMembership(ctx context.Context, orgID, userID string) (core.OrgMembership, error) {
	var list apiMembershipList
	q := url.Values{"user_id": {userID}, "limit": {"1"}}
	path := "/organizations/" + url.PathEscape(orgID) + "/memberships"
	if err := c.do(ctx, http.MethodGet, path, q, nil, &list); err != nil {
		return core.OrgMembership{}, err
	}
	for _, m := range list.Data {
		if m.PublicUserData.UserID == userID {
			return m.toOrgMembership(orgID), nil
		}
	}
	return core.OrgMembership{}, errors.Wrap(core.ErrIdentityNotFound, "membership")
}

func (c *Client) CreateMembership(ctx context.Context, orgID, userID, role string) (core.OrgMembership, error) {
	var m apiMembership
	path := "/organizations/" + url.PathEscape(orgID) + "/memberships"
	body := map[string]string{"user_id": userID, "role": role}
	if err := c.do(ctx, http.MethodPost, path, nil, body, &m); err != nil {
		return core.OrgMembership{}, err
	}
	return m.toOrgMembership(orgID), nil
}

func (c *Client) UpdateMembershipRole(ctx context.Context, orgID, userID, role string) (core.OrgMembership, error) {
	var m apiMembership
	path := "/organizations/" + url.PathEscape(orgID) + "/memberships/" + url.PathEscape(userID)
	if err := c.do(ctx, http.MethodPatch, path, nil, map[string]string{"role": role}, &m); err != nil {
		return core.OrgMembership{}, err
	}
	return m.toOrgMembership(orgID), nil
}

func (c *Client) DeleteMembership(ctx context.Context, orgID, userID string) error {
	path := "/organizations/" + url.PathEscape(orgID) + "/memberships/" + url.PathEscape(userID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

func (c *Client) CreateInvitation(ctx context.Context, orgID, email, role, redirectURL string) error {
	path := "/organizations/" + url.PathEscape(orgID) + "/invitations"
	body := map[string]string{"email_address": email, "role": role}
	if redirectURL != "" {
		body["redirect_url"] = redirectURL
	}
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}
