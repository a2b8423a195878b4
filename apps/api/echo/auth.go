package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/cheti/core"
)

const (
	contextClaimsKey = "staffClaims"
	tokenAudience    = "staff"
	bearerPrefix     = "Bearer "
)

var signingMethod = jwt.SigningMethodHS256

// Claims represents the authorization claims of a staff member, transmitted via a JWT.
// A staff member only ever acts on the certificates of their partition.
type Claims struct {
	jwt.StandardClaims
	Name        string `json:"name,omitempty"`
	PartitionID string `json:"partition_id"`
}

func (c Claims) Actor() core.Actor {
	return core.Actor{ID: c.Subject, Name: c.Name, Partition: c.PartitionID}
}

// NewClaims returns the claims of a staff member of a partition, valid for conf.Server.JWTExpirationDelta.
func NewClaims(conf *core.Config, subject, name, partitionID string) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   subject,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  now.Unix(),
		},
		Name:        name,
		PartitionID: partitionID,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(signingMethod, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

type authenticator struct {
	key []byte
}

func newAuthenticator(conf *core.Config) authenticator {
	return authenticator{key: []byte(conf.SecretKey)}
}

func (a authenticator) keyFunc(token *jwt.Token) (interface{}, error) {
	if token.Method.Alg() != signingMethod.Alg() {
		return nil, errors.Errorf("unexpected signing method %q", token.Method.Alg())
	}
	return a.key, nil
}

func (a authenticator) parse(header string) (*Claims, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, errMissingToken
	}
	raw := strings.TrimSpace(header[len(bearerPrefix):])
	if raw == "" {
		return nil, errMissingToken
	}

	claims := new(Claims)
	token, err := jwt.ParseWithClaims(raw, claims, a.keyFunc)
	if err != nil || !token.Valid {
		return nil, &echo.HTTPError{Code: http.StatusUnauthorized, Message: errInvalidToken.Message, Internal: err}
	}
	if !claims.VerifyAudience(tokenAudience, true) || claims.PartitionID == "" {
		return nil, errHttpForbidden
	}
	return claims, nil
}

// middleware authenticates staff bearer tokens.
func (a authenticator) middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := a.parse(ctx.Request().Header.Get(echo.HeaderAuthorization))
			if err != nil {
				return err
			}
			ctx.Set(contextClaimsKey, claims)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(*Claims); ok {
		return *claims, nil
	}
	return Claims{}, errUnauthorized
}
