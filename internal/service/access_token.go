package service

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/samber/oops"
	"github.com/tripdesk/backoffice/internal/model"
)

type accessClaims struct {
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Kind        string   `json:"kind"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
	jwt.RegisteredClaims
}

// AccessTokenIssuer signs and verifies stateless HS256 access tokens. It
// holds no storage.
type AccessTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewAccessTokenIssuer(secret []byte, issuer string, ttl time.Duration) *AccessTokenIssuer {
	return &AccessTokenIssuer{
		secret: secret,
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (i *AccessTokenIssuer) TTL() time.Duration {
	return i.ttl
}

// Issue signs a token for account. Roles must already be loaded.
func (i *AccessTokenIssuer) Issue(account *model.Account) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := accessClaims{
		Username:    account.Username,
		Email:       account.Email,
		Kind:        account.Kind,
		Roles:       account.RoleNames(),
		Permissions: account.PermissionNames(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   account.ID.String(),
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (i *AccessTokenIssuer) Parse(tokenStr string) (*model.AuthUser, error) {
	claims := &accessClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidOrExpiredToken
		}
		return i.secret, nil
	},
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return nil, oops.Code("AUTH_ACCESS_TOKEN_INVALID").Wrap(ErrInvalidOrExpiredToken)
	}

	accountID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, oops.Code("AUTH_ACCESS_TOKEN_INVALID").
			With("subject", claims.Subject).
			Wrap(ErrInvalidOrExpiredToken)
	}

	return &model.AuthUser{
		ID:          accountID,
		Username:    claims.Username,
		Email:       claims.Email,
		Kind:        claims.Kind,
		Roles:       claims.Roles,
		Permissions: claims.Permissions,
	}, nil
}
