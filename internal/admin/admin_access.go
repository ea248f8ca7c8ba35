package admin

import (
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ipAllowlist 는 단일 주소를 단일 호스트 prefix 로 보관한다.
type ipAllowlist struct {
	prefixes []netip.Prefix
}

func newIPAllowlist(raw []string) (*ipAllowlist, error) {
	var prefixes []netip.Prefix
	for _, item := range raw {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if strings.Contains(item, "/") {
			prefix, err := netip.ParsePrefix(item)
			if err != nil {
				return nil, fmt.Errorf("invalid cidr %q: %w", item, err)
			}
			prefixes = append(prefixes, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(item)
		if err != nil {
			return nil, fmt.Errorf("invalid ip %q: %w", item, err)
		}
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	if len(prefixes) == 0 {
		return nil, nil
	}
	return &ipAllowlist{prefixes: prefixes}, nil
}

func (l *ipAllowlist) allows(addr netip.Addr) bool {
	if l == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap()
	for _, prefix := range l.prefixes {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func (l *ipAllowlist) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		addr, err := netip.ParseAddr(c.ClientIP())
		if err != nil {
			writeAPIError(c, http.StatusForbidden, "ip_unknown", "client address could not be determined")
			return
		}
		if !l.allows(addr) {
			writeAPIError(c, http.StatusForbidden, "ip_forbidden", "client address is not allowed")
			return
		}
		c.Set(adminIdentityKey, "ip:"+addr.String())
		c.Next()
	}
}

// bearerVerifier 는 Authorization 헤더의 HS256 토큰을 검증한다.
type bearerVerifier struct {
	secret []byte
	parser *jwt.Parser
}

func newBearerVerifier(secret string, issuer string) *bearerVerifier {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &bearerVerifier{secret: []byte(secret), parser: jwt.NewParser(opts...)}
}

func (v *bearerVerifier) verify(tokenString string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := v.parser.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("subject claim is empty")
	}
	return claims, nil
}

func (v *bearerVerifier) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		tokenString, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(tokenString) == "" {
			writeAPIError(c, http.StatusUnauthorized, "missing_token", "Authorization: Bearer token is required")
			return
		}
		claims, err := v.verify(strings.TrimSpace(tokenString))
		if err != nil {
			writeAPIError(c, http.StatusUnauthorized, "invalid_token", "token is not valid")
			return
		}
		c.Set(adminIdentityKey, "jwt:"+claims.Subject)
		c.Next()
	}
}
