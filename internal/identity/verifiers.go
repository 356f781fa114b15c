package identity

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	DefaultFirebaseCertsURL = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
	firebaseIssuerPrefix    = "https://securetoken.google.com/"
	defaultCertsTTL         = time.Hour
)

type tokenClaims struct {
	jwt.StandardClaims
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
}

// FirebaseVerifier validates Firebase Authentication ID tokens.
type FirebaseVerifier struct {
	projectId string
	certsURL  string
	client    *http.Client

	mu      sync.RWMutex
	keys    map[string]*rsa.PublicKey
	expires time.Time
	now     func() time.Time
}

func NewFirebaseVerifier(projectId, certsURL string) *FirebaseVerifier {
	if certsURL == "" {
		certsURL = DefaultFirebaseCertsURL
	}

	return &FirebaseVerifier{
		projectId: projectId,
		certsURL:  certsURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		now:       time.Now,
	}
}

func (v *FirebaseVerifier) Verify(ctx context.Context, tokenString string) (Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok || t.Method.Alg() != jwt.SigningMethodRS256.Alg() {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}

		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing key id")
		}

		return v.publicKey(ctx, kid)
	})
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return Claims{}, errors.New("invalid token")
	}

	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return Claims{}, errors.New("token missing or past expiry")
	}
	if !claims.VerifyAudience(v.projectId, true) {
		return Claims{}, fmt.Errorf("unexpected audience %q", claims.Audience)
	}
	if !claims.VerifyIssuer(firebaseIssuerPrefix+v.projectId, true) {
		return Claims{}, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("missing subject")
	}

	return Claims{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

func (v *FirebaseVerifier) publicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	v.mu.RLock()
	key, ok := v.keys[kid]
	fresh := v.now().Before(v.expires)
	v.mu.RUnlock()

	if ok && fresh {
		return key, nil
	}

	if err := v.refreshKeys(ctx); err != nil {
		return nil, err
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	if key, ok := v.keys[kid]; ok {
		return key, nil
	}
	return nil, fmt.Errorf("unknown key id %q", kid)
}

func (v *FirebaseVerifier) refreshKeys(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.certsURL, nil)
	if err != nil {
		return fmt.Errorf("build certs request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("fetch certs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetch certs: unexpected status %d", resp.StatusCode)
	}

	var certs map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&certs); err != nil {
		return fmt.Errorf("decode certs: %w", err)
	}

	keys := make(map[string]*rsa.PublicKey, len(certs))
	for kid, pem := range certs {
		key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pem))
		if err != nil {
			return fmt.Errorf("parse cert %q: %w", kid, err)
		}
		keys[kid] = key
	}

	v.mu.Lock()
	v.keys = keys
	v.expires = v.now().Add(maxAge(resp.Header.Get("Cache-Control")))
	v.mu.Unlock()

	return nil
}

// maxAge reads max-age from a Cache-Control header value.
func maxAge(cacheControl string) time.Duration {
	for _, directive := range strings.Split(cacheControl, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(directive), "=")
		if !ok || !strings.EqualFold(name, "max-age") {
			continue
		}
		if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultCertsTTL
}

// HMACVerifier validates HS256 tokens signed with a shared key.
type HMACVerifier struct {
	signingKey []byte
	issuer     string
}

func NewHMACVerifier(signingKey []byte, issuer string) *HMACVerifier {
	return &HMACVerifier{signingKey: signingKey, issuer: issuer}
}

func (v *HMACVerifier) Verify(_ context.Context, tokenString string) (Claims, error) {
	var claims tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %q", t.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return Claims{}, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid {
		return Claims{}, errors.New("invalid token")
	}

	if !claims.VerifyExpiresAt(time.Now().Unix(), true) {
		return Claims{}, errors.New("token missing or past expiry")
	}
	if v.issuer != "" && !claims.VerifyIssuer(v.issuer, true) {
		return Claims{}, fmt.Errorf("unexpected issuer %q", claims.Issuer)
	}
	if claims.Subject == "" {
		return Claims{}, errors.New("missing subject")
	}

	return Claims{Subject: claims.Subject, Email: claims.Email, Name: claims.Name}, nil
}

// IssueToken signs an HS256 token for subject. Used by tooling and tests to
// mint credentials for the HMAC provider.
func (v *HMACVerifier) IssueToken(claims Claims, exp time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		StandardClaims: jwt.StandardClaims{
			Subject:   claims.Subject,
			Issuer:    v.issuer,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(exp).Unix(),
		},
		Email: claims.Email,
		Name:  claims.Name,
	})

	return token.SignedString(v.signingKey)
}

// DevVerifier accepts any non-empty token as a fixed identity. It must only
// be configured outside production.
type DevVerifier struct {
	claims Claims
}

func NewDevVerifier(uid, email, name string) *DevVerifier {
	return &DevVerifier{claims: Claims{Subject: uid, Email: email, Name: name}}
}

func (v *DevVerifier) Verify(context.Context, string) (Claims, error) {
	return v.claims, nil
}
