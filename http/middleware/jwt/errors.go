package jwt_middleware

import "errors"

var (
	// ErrInvalidToken wraps every reason a presented token is rejected.
	ErrInvalidToken = errors.New("invalid token")

	// ErrMissingSecret is returned when JWT_SECRET_KEY is empty.
	ErrMissingSecret = errors.New("jwt secret key is not configured")

	// ErrUnsupportedMethod is returned for a JWT_SIGNING_METHOD outside the HMAC family.
	ErrUnsupportedMethod = errors.New("unsupported jwt signing method")

	// ErrMissingUserID is returned when the token carries no user_id claim.
	ErrMissingUserID = errors.New("missing user_id in token")

	// ErrUnknownUser is returned when the token user is not in the projection.
	ErrUnknownUser = errors.New("token user does not exist")
)
