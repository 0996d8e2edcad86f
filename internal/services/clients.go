package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math/big"
	"regexp"

	"ovpnadmin/internal/models"
	"ovpnadmin/internal/vpncertd"
)

const (
	clientProfile    = "client"
	clientKeyType    = "rsa4096"
	revokeReason     = "keyCompromise"
	passphraseLength = 16
)

// CertDaemon is satisfied by *vpncertd.Client.
type CertDaemon interface {
	GenKeyAndSign(ctx context.Context, req vpncertd.IssueRequest) (*vpncertd.IssueReply, error)
	Revoke(ctx context.Context, serial, reason string) error
	ListIssued(ctx context.Context) ([]vpncertd.IssuedMeta, error)
	BuildBundle(ctx context.Context, spec vpncertd.BundleSpec) ([]byte, error)
}

// BundleTarget is the server endpoint written into client bundles.
type BundleTarget struct {
	Host  string
	Port  int
	Proto string
}

type IssuedClient struct {
	CN         string `json:"cn"`
	Passphrase string `json:"passphrase"`
	Serial     string `json:"serial,omitempty"`
	NotAfter   string `json:"not_after,omitempty"`
}

type ClientService struct {
	daemon CertDaemon
	audit  Auditor
	cn     *regexp.Regexp
	target BundleTarget
}

func NewClientService(daemon CertDaemon, audit Auditor, cn *regexp.Regexp, target BundleTarget) *ClientService {
	return &ClientService{daemon: daemon, audit: audit, cn: cn, target: target}
}

// Create issues a key and certificate for cn. An empty passphrase is
// replaced by a random one, which is returned to the caller.
func (s *ClientService) Create(ctx context.Context, actor Actor, cn, passphrase string) (*IssuedClient, error) {
	if !s.cn.MatchString(cn) {
		return nil, ErrInvalidCN
	}

	if passphrase == "" {
		p, err := randomPassphrase()
		if err != nil {
			return nil, err
		}
		passphrase = p
	}

	reply, err := s.daemon.GenKeyAndSign(ctx, vpncertd.IssueRequest{
		CN:         cn,
		Profile:    clientProfile,
		KeyType:    clientKeyType,
		Passphrase: passphrase,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.event(models.ActionClientCreate, cn, map[string]string{"serial": reply.Serial}))

	return &IssuedClient{
		CN:         cn,
		Passphrase: passphrase,
		Serial:     reply.Serial,
		NotAfter:   reply.NotAfter,
	}, nil
}

// Revoke revokes a certificate. A numeric id is taken as a serial; anything
// else is a CN whose newest issued serial is revoked.
func (s *ClientService) Revoke(ctx context.Context, actor Actor, id string) error {
	if !s.cn.MatchString(id) {
		return ErrInvalidCN
	}

	serial := id
	if !isSerial(id) {
		issued, err := s.daemon.ListIssued(ctx)
		if err != nil {
			return err
		}
		serial = newestSerial(issued, id)
		if serial == "" {
			return ErrClientNotFound
		}
	}

	if err := s.daemon.Revoke(ctx, serial, revokeReason); err != nil {
		return err
	}

	s.audit.Record(ctx, actor.event(models.ActionClientRevoke, id, map[string]string{"serial": serial}))
	return nil
}

// Bundle returns the zipped client profile for cn.
func (s *ClientService) Bundle(ctx context.Context, actor Actor, cn string, includeKey bool) ([]byte, error) {
	if !s.cn.MatchString(cn) {
		return nil, ErrInvalidCN
	}

	zip, err := s.daemon.BuildBundle(ctx, vpncertd.BundleSpec{
		CN:         cn,
		IncludeKey: includeKey,
		RemoteHost: s.target.Host,
		RemotePort: s.target.Port,
		Proto:      s.target.Proto,
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, actor.event(models.ActionClientBundle, cn, map[string]bool{"include_key": includeKey}))
	return zip, nil
}

func isSerial(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// newestSerial picks the numerically highest serial issued to cn.
// Serials that do not parse rank lowest.
func newestSerial(issued []vpncertd.IssuedMeta, cn string) string {
	var (
		best    string
		bestNum *big.Int
	)
	for _, it := range issued {
		if it.CN != cn {
			continue
		}
		n, ok := new(big.Int).SetString(it.Serial, 10)
		if !ok {
			n = big.NewInt(0)
		}
		if bestNum == nil || n.Cmp(bestNum) >= 0 {
			best, bestNum = it.Serial, n
		}
	}
	return best
}

func randomPassphrase() (string, error) {
	raw := make([]byte, passphraseLength)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate passphrase: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
