package registryauth

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ecr"
	ecrtypes "github.com/aws/aws-sdk-go-v2/service/ecr/types"
)

// ECRProvider resolves short-lived ECR credentials through the AWS
// SDK, cached per host until close to expiry.
type ECRProvider struct {
	registry string
	region   string
	mu       sync.Mutex
	cache    map[string]ecrToken
}

type ecrToken struct {
	Username string
	Password string
	Expires  time.Time
}

// NewECRProvider creates an ECR provider. Region is optional; without
// it the region is read out of the registry host.
func NewECRProvider(registry, region string) *ECRProvider {
	return &ECRProvider{registry: registry, region: region, cache: make(map[string]ecrToken)}
}

func (p *ECRProvider) Match(host string) bool {
	return HostMatches(p.registry, host)
}

func (p *ECRProvider) Resolve(ctx context.Context, host, imageRef string) (string, error) {
	p.mu.Lock()
	if tok, ok := p.cache[host]; ok && time.Until(tok.Expires) > 5*time.Minute {
		p.mu.Unlock()
		return encode(tok.Username, tok.Password, host), nil
	}
	p.mu.Unlock()

	username, password, expires, err := p.fetch(ctx, host)
	if err != nil {
		// Anonymous pull may still work for public repositories.
		return "", nil
	}

	p.mu.Lock()
	p.cache[host] = ecrToken{Username: username, Password: password, Expires: expires}
	p.mu.Unlock()
	return encode(username, password, host), nil
}

func (p *ECRProvider) fetch(ctx context.Context, host string) (string, string, time.Time, error) {
	region := p.region
	if region == "" {
		// <account>.dkr.ecr.<region>.amazonaws.com
		parts := strings.Split(host, ".")
		if len(parts) >= 6 {
			region = parts[3]
		}
	}
	if region == "" {
		return "", "", time.Time{}, fmt.Errorf("ecr: no region for host %s", host)
	}

	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return "", "", time.Time{}, err
	}

	cli := ecr.NewFromConfig(cfg)
	out, err := cli.GetAuthorizationToken(ctx, &ecr.GetAuthorizationTokenInput{})
	if err != nil {
		return "", "", time.Time{}, err
	}
	if len(out.AuthorizationData) == 0 {
		return "", "", time.Time{}, fmt.Errorf("ecr: empty auth data")
	}

	var chosen ecrtypes.AuthorizationData
	for _, ad := range out.AuthorizationData {
		if ad.ProxyEndpoint != nil && strings.Contains(*ad.ProxyEndpoint, host) {
			chosen = ad
			break
		}
	}
	if chosen.AuthorizationToken == nil {
		chosen = out.AuthorizationData[0]
	}

	tok, err := base64.StdEncoding.DecodeString(*chosen.AuthorizationToken)
	if err != nil {
		return "", "", time.Time{}, err
	}
	parts := strings.SplitN(string(tok), ":", 2)
	if len(parts) != 2 {
		return "", "", time.Time{}, fmt.Errorf("ecr: invalid token format")
	}

	expires := time.Now().Add(12 * time.Hour)
	if chosen.ExpiresAt != nil {
		expires = *chosen.ExpiresAt
	}
	return parts[0], parts[1], expires, nil
}
