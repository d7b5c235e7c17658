package token

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/StricklySoft/stricklysoft-authn/pkg/credentials"
	sserr "github.com/StricklySoft/stricklysoft-authn/pkg/errors"
)

// maxTokenSize bounds the signed text accepted by the verifier.
const maxTokenSize = 16 * 1024

// Verifier checks the signed envelope of a token against the keyring and
// returns its claims. It is the boundary that turns text into trusted
// claims.
type Verifier struct {
	keys   *credentials.Keyring
	parser *jwt.Parser
	now    func() time.Time
	tracer trace.Tracer
}

// NewVerifier returns a Verifier that accepts the algorithms of keys.
func NewVerifier(keys *credentials.Keyring, opts ...Option) *Verifier {
	o := buildOptions(opts)
	return &Verifier{
		keys: keys,
		parser: jwt.NewParser(
			jwt.WithValidMethods(keys.Algorithms()),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(o.now),
		),
		now:    o.now,
		tracer: otel.Tracer(tracerName),
	}
}

// Parse verifies text and returns its claims. The signing key is chosen
// by the kid header, so tokens signed by any key in the ring verify.
func (v *Verifier) Parse(ctx context.Context, text string) (*Claims, error) {
	_, span := v.tracer.Start(ctx, "token.Parse")
	defer span.End()

	if text == "" || len(text) > maxTokenSize {
		err := sserr.New(sserr.CodeAuthenticationInvalid, "token: empty or oversized token")
		finishSpan(span, err)
		return nil, err
	}

	claims := &Claims{}
	_, err := v.parser.ParseWithClaims(text, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		signer, ok := v.keys.Lookup(kid)
		if !ok {
			return nil, sserr.Newf(sserr.CodeAuthenticationInvalid, "token: unknown key id %q", kid)
		}
		if signer.Algorithm() != t.Method.Alg() {
			return nil, sserr.New(sserr.CodeAuthenticationInvalid, "token: algorithm does not match key")
		}
		return signer.VerificationKey(), nil
	})
	if err != nil {
		classified := classifyError(err)
		finishSpan(span, classified)
		return nil, classified
	}
	if err := Validate(claims, v.now()); err != nil {
		finishSpan(span, err)
		return nil, err
	}

	span.SetAttributes(attribute.String("authn.jti", claims.ID))
	return claims, nil
}

// classifyError maps jwt parse errors to authentication codes.
func classifyError(err error) *sserr.Error {
	var ssErr *sserr.Error
	if errors.As(err, &ssErr) {
		return ssErr
	}
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return sserr.Wrap(err, sserr.CodeAuthenticationExpired, "token: token has expired")
	case errors.Is(err, jwt.ErrTokenMalformed):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: token is malformed")
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: signature is invalid")
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: token is not valid yet")
	default:
		return sserr.Wrap(err, sserr.CodeAuthenticationInvalid, "token: token is invalid")
	}
}
