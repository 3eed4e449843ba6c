package identitysvc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/somesha/core"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(core.IdentityConfig{BaseURL: srv.URL, SecretKey: "sk_test", Timeout: time.Second})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_FindUserByEmail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer sk_test", r.Header.Get("Authorization"))
		assert.Equal(t, "/users", r.URL.Path)

		switch r.URL.Query().Get("email_address") {
		case "amani@test.cd":
			writeJSON(w, http.StatusOK, []map[string]interface{}{{
				"id":                       "user_1",
				"first_name":               "Amani",
				"last_name":                "Kabila",
				"primary_email_address_id": "idn_2",
				"email_addresses": []map[string]string{
					{"id": "idn_1", "email_address": "old@test.cd"},
					{"id": "idn_2", "email_address": "Amani@test.cd"},
				},
			}})
		default:
			writeJSON(w, http.StatusOK, []interface{}{})
		}
	})

	usr, err := client.FindUserByEmail(context.Background(), "amani@test.cd")
	require.NoError(t, err)
	assert.Equal(t, core.IdentityUser{ID: "user_1", Email: "amani@test.cd", FirstName: "Amani", LastName: "Kabila"}, usr)
	assert.Equal(t, "Amani Kabila", usr.FullName())

	_, err = client.FindUserByEmail(context.Background(), "ghost@test.cd")
	assert.Equal(t, core.ErrIdentityNotFound, errors.Cause(err))
}

func TestClient_memberships(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/organizations/org_1/memberships":
			assert.Equal(t, "user_1", r.URL.Query().Get("user_id"))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"data": []map[string]interface{}{{
					"id":               "orgmem_1",
					"role":             "org:member",
					"public_user_data": map[string]string{"user_id": "user_1"},
				}},
				"total_count": 1,
			})
		case r.Method == http.MethodPatch && r.URL.Path == "/organizations/org_1/memberships/user_1":
			var body map[string]string
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"id":               "orgmem_1",
				"role":             body["role"],
				"organization":     map[string]string{"id": "org_1"},
				"public_user_data": map[string]string{"user_id": "user_1"},
			})
		case r.Method == http.MethodPost && r.URL.Path == "/organizations/org_1/memberships":
			writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{
				"errors": []map[string]string{{"code": "already_a_member_in_organization", "message": "already a member"}},
			})
		case r.Method == http.MethodDelete:
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"errors": []map[string]string{{"code": "resource_not_found", "message": "not found"}},
			})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
				"errors": []map[string]string{{"code": "internal", "message": "boom"}},
			})
		}
	})
	ctx := context.Background()

	ms, err := client.GetMembership(ctx, "org_1", "user_1")
	require.NoError(t, err)
	assert.Equal(t, core.OrgMembership{ID: "orgmem_1", OrgID: "org_1", UserID: "user_1", Role: "org:member"}, ms)

	ms, err = client.UpdateMembershipRole(ctx, "org_1", "user_1", "org:trainer")
	require.NoError(t, err)
	assert.Equal(t, "org:trainer", ms.Role)

	_, err = client.CreateMembership(ctx, "org_1", "user_1", "org:student")
	assert.Equal(t, core.ErrIdentityConflict, errors.Cause(err))

	err = client.DeleteMembership(ctx, "org_1", "user_1")
	assert.Equal(t, core.ErrIdentityNotFound, errors.Cause(err))

	err = client.CreateInvitation(ctx, "org_2", "x@test.cd", "org:student", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500 boom")
}
