package ens

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	goens "github.com/wealdtech/go-ens/v3"

	clierr "github.com/payflowhq/payflow/internal/errors"
	"github.com/payflowhq/payflow/internal/model"
)

// NameService resolves ENS names against mainnet. Text-record lookups fail
// soft; only forward resolution failures surface as errors.
type NameService interface {
	Resolve(ctx context.Context, name string) (string, error)
	ReverseResolve(ctx context.Context, address string) (string, error)
	Profile(ctx context.Context, name string) (model.ENSProfile, error)
}

type Service struct {
	rpcURL string
}

func New(rpcURL string) *Service {
	return &Service{rpcURL: strings.TrimSpace(rpcURL)}
}

// IsName reports whether the input looks like an ENS name rather than an
// address.
func IsName(input string) bool {
	v := strings.TrimSpace(strings.ToLower(input))
	return strings.HasSuffix(v, ".eth") || (strings.Contains(v, ".") && !strings.HasPrefix(v, "0x"))
}

func (s *Service) dial(ctx context.Context) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, s.rpcURL)
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeUnavailable, "connect ens rpc", err)
	}
	return client, nil
}

func (s *Service) Resolve(ctx context.Context, name string) (string, error) {
	client, err := s.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	address, err := goens.Resolve(client, strings.TrimSpace(name))
	if err != nil {
		return "", clierr.Wrap(clierr.CodeUsage, "resolve ens name "+name, err)
	}
	if address == (common.Address{}) {
		return "", clierr.New(clierr.CodeUsage, "ens name "+name+" does not resolve to an address")
	}
	return address.Hex(), nil
}

func (s *Service) ReverseResolve(ctx context.Context, address string) (string, error) {
	client, err := s.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	name, err := goens.ReverseResolve(client, common.HexToAddress(address))
	if err != nil {
		// Most addresses have no reverse record; treat that as empty.
		return "", nil
	}
	return name, nil
}

// Profile resolves the name and attaches whatever text records exist.
func (s *Service) Profile(ctx context.Context, name string) (model.ENSProfile, error) {
	client, err := s.dial(ctx)
	if err != nil {
		return model.ENSProfile{}, err
	}
	defer client.Close()

	clean := strings.TrimSpace(name)
	address, err := goens.Resolve(client, clean)
	if err != nil || address == (common.Address{}) {
		return model.ENSProfile{}, clierr.New(clierr.CodeUsage, "ens name "+name+" does not resolve to an address")
	}
	profile := model.ENSProfile{Name: clean, Address: address.Hex()}

	resolver, err := goens.NewResolver(client, clean)
	if err != nil {
		return profile, nil
	}
	profile.Avatar = textRecord(resolver, "avatar")
	profile.Description = textRecord(resolver, "description")
	profile.URL = textRecord(resolver, "url")
	profile.Twitter = textRecord(resolver, "com.twitter")
	profile.GitHub = textRecord(resolver, "com.github")
	return profile, nil
}

func textRecord(resolver *goens.Resolver, key string) string {
	value, err := resolver.Text(key)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(value)
}
