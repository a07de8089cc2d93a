package ufds

import (
	"errors"
	"testing"

	"github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/model"
	"github.com/isabella232/sdc-amon/pkg/probetype"
)

const (
	testUser    = "a5bf38a4-3392-4d3c-b427-f28c9e4e0d21"
	testMachine = "7b80e2a5-9a11-4d34-8b2b-3babcec0e66a"
	testServer  = "564d4d2c-3b9a-4a7d-8f43-0d9a5ee318bb"
)

type fakeConn struct {
	searchFn func(*ldap.SearchRequest) (*ldap.SearchResult, error)
	addFn    func(*ldap.AddRequest) error
	modifyFn func(*ldap.ModifyRequest) error
	delFn    func(*ldap.DelRequest) error
	closed   bool
}

func (f *fakeConn) Bind(username, password string) error { return nil }
func (f *fakeConn) Close()                               { f.closed = true }

func (f *fakeConn) Search(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
	if f.searchFn == nil {
		return &ldap.SearchResult{}, nil
	}
	return f.searchFn(req)
}

func (f *fakeConn) Add(req *ldap.AddRequest) error {
	if f.addFn == nil {
		return nil
	}
	return f.addFn(req)
}

func (f *fakeConn) Modify(req *ldap.ModifyRequest) error {
	if f.modifyFn == nil {
		return nil
	}
	return f.modifyFn(req)
}

func (f *fakeConn) Del(req *ldap.DelRequest) error {
	if f.delFn == nil {
		return nil
	}
	return f.delFn(req)
}

func newTestClient(fc *fakeConn) (*Client, *int) {
	dials := 0
	c := New(Config{URL: "ldap://test", Registry: probetype.Default()})
	c.dial = func() (conn, error) {
		dials++
		return fc, nil
	}
	return c, &dials
}

func TestAccountByLogin(t *testing.T) {
	fc := &fakeConn{
		searchFn: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			assert.Equal(t, model.UsersBase, req.BaseDN)
			assert.Contains(t, req.Filter, "(login=alice)")
			assert.Contains(t, req.Filter, "(objectclass=sdcperson)")
			return &ldap.SearchResult{Entries: []*ldap.Entry{
				ldap.NewEntry("uuid="+testUser+", ou=users, o=smartdc", map[string][]string{
					"uuid":  {testUser},
					"login": {"alice"},
					"email": {"alice@example.com"},
					"cn":    {"Alice"},
				}),
			}}, nil
		},
	}
	c, _ := newTestClient(fc)

	acct, err := c.AccountByLogin("alice")
	require.NoError(t, err)
	assert.Equal(t, testUser, acct.UUID)
	assert.Equal(t, "alice", acct.Login)
	assert.Equal(t, "uuid="+testUser+", ou=users, o=smartdc", acct.DN)
}

func TestAccountByLoginNotFound(t *testing.T) {
	c, _ := newTestClient(&fakeConn{})

	_, err := c.AccountByLogin("nobody")
	require.Error(t, err)
	assert.True(t, amonerr.IsNotFound(err))
}

func TestAccountByLoginEscapesFilter(t *testing.T) {
	var filter string
	fc := &fakeConn{
		searchFn: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			filter = req.Filter
			return &ldap.SearchResult{}, nil
		},
	}
	c, _ := newTestClient(fc)

	_, _ = c.AccountByLogin("ali*ce)")
	assert.NotContains(t, filter, "ali*ce)", "raw metacharacters must not reach the filter")
}

func TestIsOperator(t *testing.T) {
	memberDN := "uuid=" + testUser + ", ou=users, o=smartdc"
	fc := &fakeConn{
		searchFn: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			assert.Equal(t, model.OperatorsGroupDN, req.BaseDN)
			return &ldap.SearchResult{Entries: []*ldap.Entry{
				ldap.NewEntry(model.OperatorsGroupDN, map[string][]string{"cn": {"operators"}}),
			}}, nil
		},
	}
	c, _ := newTestClient(fc)

	ok, err := c.IsOperator(memberDN)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIsOperatorMissingGroupMeansNo(t *testing.T) {
	fc := &fakeConn{
		searchFn: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
		},
	}
	c, _ := newTestClient(fc)

	ok, err := c.IsOperator("uuid=" + testUser + ", ou=users, o=smartdc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetContactRoundTrip(t *testing.T) {
	ct, err := model.NewContact(testUser, model.ContactInput{Name: "pager", Medium: "email", Data: "a@b.c"})
	require.NoError(t, err)

	fc := &fakeConn{
		searchFn: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			assert.Equal(t, ct.DN(), req.BaseDN)
			assert.Equal(t, ldap.ScopeBaseObject, req.Scope)
			return &ldap.SearchResult{Entries: []*ldap.Entry{
				ldap.NewEntry(ct.DN(), ct.Attributes()),
			}}, nil
		},
	}
	c, _ := newTestClient(fc)

	got, err := c.GetContact(testUser, "pager")
	require.NoError(t, err)
	assert.Equal(t, ct, got)
}

func TestGetMonitorNotFound(t *testing.T) {
	fc := &fakeConn{
		searchFn: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			return nil, ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
		},
	}
	c, _ := newTestClient(fc)

	_, err := c.GetMonitor(testUser, "webapp")
	assert.True(t, amonerr.IsNotFound(err))
}

func TestPutProbeUpsertClearsStaleTarget(t *testing.T) {
	reg := probetype.Default()
	p, err := model.NewProbe(reg, testUser, "webapp", model.ProbeInput{
		Name:   "errors",
		Type:   "logscan",
		Server: testServer,
		Config: map[string]interface{}{"path": "/var/log/app.log", "regex": "ERROR", "period": float64(60)},
	})
	require.NoError(t, err)

	var modReq *ldap.ModifyRequest
	fc := &fakeConn{
		addFn: func(req *ldap.AddRequest) error {
			return ldap.NewError(ldap.LDAPResultEntryAlreadyExists, errors.New("exists"))
		},
		modifyFn: func(req *ldap.ModifyRequest) error {
			modReq = req
			return nil
		},
	}
	c, _ := newTestClient(fc)

	require.NoError(t, c.PutProbe(p))
	require.NotNil(t, modReq, "add fell back to modify")

	replaced := map[string][]string{}
	for _, ch := range modReq.Changes {
		replaced[ch.Modification.Type] = ch.Modification.Vals
	}
	assert.Equal(t, []string{testServer}, replaced["server"])
	attrs, ok := replaced["machine"]
	require.True(t, ok, "stale machine attribute must be cleared")
	assert.Empty(t, attrs)
	assert.NotContains(t, replaced, "objectclass")
	assert.NotContains(t, replaced, "amonprobe")
}

func TestDeleteNotFound(t *testing.T) {
	fc := &fakeConn{
		delFn: func(req *ldap.DelRequest) error {
			return ldap.NewError(ldap.LDAPResultNoSuchObject, errors.New("no such object"))
		},
	}
	c, _ := newTestClient(fc)

	err := c.DeleteContact(testUser, "pager")
	assert.True(t, amonerr.IsNotFound(err))
}

func TestNetworkErrorTriggersRebind(t *testing.T) {
	calls := 0
	fc := &fakeConn{
		searchFn: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			calls++
			if calls == 1 {
				return nil, ldap.NewError(ldap.ErrorNetwork, errors.New("connection reset"))
			}
			return &ldap.SearchResult{}, nil
		},
	}
	c, dials := newTestClient(fc)

	_, err := c.ListContacts(testUser)
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "operation retried after rebind")
	assert.Equal(t, 2, *dials, "reconnected once")
}

func TestDirectoryDownIsUnavailable(t *testing.T) {
	c := New(Config{URL: "ldap://test", Registry: probetype.Default()})
	c.dial = func() (conn, error) {
		return nil, errors.New("connection refused")
	}

	_, err := c.ListContacts(testUser)
	require.Error(t, err)
	assert.True(t, amonerr.IsUnavailable(err))
}

func TestGlobalProbesByMachinesEmpty(t *testing.T) {
	searched := false
	fc := &fakeConn{
		searchFn: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			searched = true
			return &ldap.SearchResult{}, nil
		},
	}
	c, _ := newTestClient(fc)

	probes, err := c.GlobalProbesByMachines(nil)
	require.NoError(t, err)
	assert.Nil(t, probes)
	assert.False(t, searched, "no machines, no search")
}

func TestGlobalProbesFilter(t *testing.T) {
	var filter string
	fc := &fakeConn{
		searchFn: func(req *ldap.SearchRequest) (*ldap.SearchResult, error) {
			filter = req.Filter
			return &ldap.SearchResult{}, nil
		},
	}
	c, _ := newTestClient(fc)

	_, err := c.GlobalProbesByMachines([]string{testMachine, testServer})
	require.NoError(t, err)
	assert.Contains(t, filter, "(global=true)")
	assert.Contains(t, filter, "(machine="+testMachine+")")
	assert.Contains(t, filter, "(machine="+testServer+")")
}
