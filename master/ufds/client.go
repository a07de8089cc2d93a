// Package ufds is the master's adapter to the UFDS directory. It owns the
// LDAP connection, maps directory errors to the system's error kinds, and
// exposes entity-level operations so higher layers never see wire details.
package ufds

import (
	"fmt"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
	"github.com/hashicorp/go-hclog"

	"github.com/isabella232/sdc-amon/pkg/amonerr"
	"github.com/isabella232/sdc-amon/pkg/probetype"
)

// conn is the slice of *ldap.Conn the client uses. Narrow on purpose: tests
// substitute a fake.
type conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	Add(req *ldap.AddRequest) error
	Modify(req *ldap.ModifyRequest) error
	Del(req *ldap.DelRequest) error
	Close()
}

type Config struct {
	URL          string
	BindDN       string
	BindPassword string

	Registry *probetype.Registry
	Log      hclog.Logger
}

// Client talks to the directory. One connection, guarded by a mutex; a
// network error triggers one reconnect-and-retry before giving up.
type Client struct {
	cfg  Config
	log  hclog.Logger
	dial func() (conn, error)

	mu   sync.Mutex
	conn conn
}

func New(cfg Config) *Client {
	if cfg.Log == nil {
		cfg.Log = hclog.NewNullLogger()
	}
	c := &Client{cfg: cfg, log: cfg.Log.Named("ufds")}
	c.dial = func() (conn, error) {
		l, err := ldap.DialURL(cfg.URL)
		if err != nil {
			return nil, err
		}
		if err := l.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			l.Close()
			return nil, err
		}
		return l, nil
	}
	return c
}

// Connect establishes the initial connection. Later reconnects happen
// transparently inside do.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	l, err := c.dial()
	if err != nil {
		return amonerr.Unavailable("directory unreachable: %v", err).WithCause(err)
	}
	c.conn = l
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// do runs one directory operation, reconnecting once on a network error.
func (c *Client) do(op func(conn) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		if err := c.connectLocked(); err != nil {
			return err
		}
	}
	err := op(c.conn)
	if !isNetworkError(err) {
		return err
	}

	c.log.Warn("directory connection lost, rebinding", "error", err)
	c.conn.Close()
	c.conn = nil
	if cerr := c.connectLocked(); cerr != nil {
		return cerr
	}
	return op(c.conn)
}

func isNetworkError(err error) bool {
	return err != nil && ldap.IsErrorWithCode(err, ldap.ErrorNetwork)
}

// mapError translates go-ldap errors into the system's kinds. dn is used in
// messages only.
func mapError(err error, dn string) error {
	if err == nil {
		return nil
	}
	ldapErr, ok := err.(*ldap.Error)
	if !ok {
		return amonerr.Internal("directory error on %q: %v", dn, err).WithCause(err)
	}
	switch ldapErr.ResultCode {
	case ldap.LDAPResultNoSuchObject:
		return amonerr.NotFound("%q not found", dn).WithCause(err)
	case ldap.LDAPResultEntryAlreadyExists:
		return amonerr.AlreadyExists("%q already exists", dn).WithCause(err)
	case ldap.LDAPResultConstraintViolation,
		ldap.LDAPResultObjectClassViolation,
		ldap.LDAPResultNotAllowedOnNonLeaf:
		return amonerr.Constraint("constraint violation on %q: %v", dn, err).WithCause(err)
	case ldap.LDAPResultBusy, ldap.LDAPResultUnavailable, ldap.ErrorNetwork:
		return amonerr.Unavailable("directory unavailable: %v", err).WithCause(err)
	default:
		return amonerr.Internal("directory error on %q: %v", dn, err).WithCause(err)
	}
}

// search runs one search and maps errors. Scope is one of the go-ldap scope
// constants.
func (c *Client) search(base string, scope int, filter string, attrs []string) ([]*ldap.Entry, error) {
	var entries []*ldap.Entry
	err := c.do(func(l conn) error {
		req := ldap.NewSearchRequest(
			base,
			scope,
			ldap.NeverDerefAliases,
			0,     // no SizeLimit
			0,     // no TimeLimit
			false, // we want attribute values
			filter,
			attrs,
			nil,
		)
		res, err := l.Search(req)
		if err != nil {
			return err
		}
		entries = res.Entries
		return nil
	})
	if err != nil {
		return nil, mapError(err, base)
	}
	return entries, nil
}

// add creates an entry; upsert callers handle AlreadyExists themselves.
func (c *Client) add(dn string, attrs map[string][]string) error {
	err := c.do(func(l conn) error {
		req := ldap.NewAddRequest(dn, nil)
		for k, v := range attrs {
			req.Attribute(k, v)
		}
		return l.Add(req)
	})
	return mapError(err, dn)
}

// replace rewrites the given attributes of an existing entry. An empty value
// slice removes the attribute.
func (c *Client) replace(dn string, attrs map[string][]string) error {
	err := c.do(func(l conn) error {
		req := ldap.NewModifyRequest(dn, nil)
		for k, v := range attrs {
			req.Replace(k, v)
		}
		return l.Modify(req)
	})
	return mapError(err, dn)
}

func (c *Client) delete(dn string) error {
	err := c.do(func(l conn) error {
		return l.Del(ldap.NewDelRequest(dn, nil))
	})
	return mapError(err, dn)
}

// upsert adds the entry, falling back to attribute replacement when it
// already exists. rdnAttr and objectclass never change on the fallback path;
// clearable attrs absent from attrs are replaced with nothing so a changed
// entry does not keep stale values (a probe moving from machine to server
// must lose its machine attribute).
func (c *Client) upsert(dn string, attrs map[string][]string, rdnAttr string, clearable ...string) error {
	err := c.add(dn, attrs)
	if !amonerr.IsAlreadyExists(err) {
		return err
	}
	replace := map[string][]string{}
	for k, v := range attrs {
		if k == "objectclass" || k == rdnAttr {
			continue
		}
		replace[k] = v
	}
	for _, k := range clearable {
		if _, ok := replace[k]; !ok {
			replace[k] = nil
		}
	}
	return c.replace(dn, replace)
}

func entryAttrs(e *ldap.Entry) map[string][]string {
	attrs := make(map[string][]string, len(e.Attributes))
	for _, a := range e.Attributes {
		attrs[strings.ToLower(a.Name)] = a.Values
	}
	return attrs
}

func filterAnd(parts ...string) string {
	return "(&" + strings.Join(parts, "") + ")"
}

func filterEq(attr, value string) string {
	return fmt.Sprintf("(%s=%s)", attr, ldap.EscapeFilter(value))
}
