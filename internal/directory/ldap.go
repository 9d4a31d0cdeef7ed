package directory

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net/url"
	"slices"

	"github.com/go-ldap/ldap/v3"
)

var ErrNotConnected = errors.New("directory not connected")

// Options configures an LDAP connection and the search that lists the
// synced entries.
type Options struct {
	URL                string
	BindDN             string
	Password           string
	BaseDN             string
	Filter             string
	StartTLS           bool
	InsecureSkipVerify bool
	// Attributes limits the attributes returned by Search. Empty returns all
	// user attributes.
	Attributes []string
	// PageSize enables the paged results control when non-zero.
	PageSize uint32
}

type LDAPStore struct {
	conn *ldap.Conn
	opts Options
}

var _ Store = (*LDAPStore)(nil)

// Dial connects, optionally upgrades with StartTLS, and binds.
func Dial(opts Options) (*LDAPStore, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("directory url: %w", err)
	}
	tlsConfig := &tls.Config{
		ServerName:         u.Hostname(),
		InsecureSkipVerify: opts.InsecureSkipVerify,
	}

	conn, err := ldap.DialURL(opts.URL, ldap.DialWithTLSConfig(tlsConfig))
	if err != nil {
		return nil, fmt.Errorf("directory dial %s: %w", opts.URL, err)
	}
	if opts.StartTLS {
		if err := conn.StartTLS(tlsConfig); err != nil {
			conn.Close()
			return nil, fmt.Errorf("directory starttls: %w", err)
		}
	}
	if err := conn.Bind(opts.BindDN, opts.Password); err != nil {
		conn.Close()
		return nil, fmt.Errorf("directory bind %s: %w", opts.BindDN, err)
	}

	slog.Debug("directory connected", "url", opts.URL, "bind", opts.BindDN, "starttls", opts.StartTLS)
	return &LDAPStore{conn: conn, opts: opts}, nil
}

func (s *LDAPStore) Search(ctx context.Context) ([]*Entry, error) {
	return s.search(ctx, s.opts.Filter)
}

func (s *LDAPStore) Find(ctx context.Context, attr, value string) ([]*Entry, error) {
	filter := fmt.Sprintf("(&%s(%s=%s))", s.opts.Filter, attr, ldap.EscapeFilter(value))
	return s.search(ctx, filter)
}

func (s *LDAPStore) search(ctx context.Context, filter string) ([]*Entry, error) {
	if s.conn == nil {
		return nil, ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := ldap.NewSearchRequest(
		s.opts.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		s.opts.Attributes,
		nil,
	)

	var (
		res *ldap.SearchResult
		err error
	)
	if s.opts.PageSize > 0 {
		res, err = s.conn.SearchWithPaging(req, s.opts.PageSize)
	} else {
		res, err = s.conn.Search(req)
	}
	if err != nil {
		return nil, fmt.Errorf("directory search %s %s: %w", s.opts.BaseDN, filter, err)
	}

	out := make([]*Entry, 0, len(res.Entries))
	for _, e := range res.Entries {
		entry := &Entry{DN: e.DN, Attributes: make(map[string][]string, len(e.Attributes))}
		for _, a := range e.Attributes {
			entry.Attributes[a.Name] = a.Values
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *LDAPStore) Add(ctx context.Context, dn string, attrs map[string][]string) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	req := ldap.NewAddRequest(dn, nil)
	for _, name := range slices.Sorted(maps.Keys(attrs)) {
		if values := attrs[name]; len(values) > 0 {
			req.Attribute(name, values)
		}
	}
	if err := s.conn.Add(req); err != nil {
		return fmt.Errorf("directory add %s: %w", dn, err)
	}
	return nil
}

func (s *LDAPStore) Delete(ctx context.Context, dn string) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		return fmt.Errorf("directory delete %s: %w", dn, err)
	}
	return nil
}

func (s *LDAPStore) Modify(ctx context.Context, dn string, replace map[string][]string) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	req := ldap.NewModifyRequest(dn, nil)
	for _, name := range slices.Sorted(maps.Keys(replace)) {
		req.Replace(name, replace[name])
	}
	if err := s.conn.Modify(req); err != nil {
		return fmt.Errorf("directory modify %s: %w", dn, err)
	}
	return nil
}

func (s *LDAPStore) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
