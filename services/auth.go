package services

import (
	"errors"
	"os"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"

	"github.com/varnstead/gatewall/dto"
	"github.com/varnstead/gatewall/shared"
)

// AuthService guards the admin API. A single operator credential (bcrypt hash
// in the environment) is exchanged for a short-lived bearer token.
type AuthService struct {
	context.DefaultService

	jwtSvc *JWTService

	operatorKeyHash string
}

const AUTH_SVC = "auth_svc"

func (svc AuthService) Id() string {
	return AUTH_SVC
}

func (svc *AuthService) Configure(ctx *context.Context) error {
	svc.operatorKeyHash = os.Getenv("ADMIN_KEY_HASH")
	return svc.DefaultService.Configure(ctx)
}

func (svc *AuthService) Start() error {
	svc.jwtSvc = svc.Service(JWT_SVC).(*JWTService)
	return nil
}

// Login exchanges the operator key for a signed token.
func (svc *AuthService) Login(req dto.LoginRequest) (*dto.LoginResponse, error) {
	if svc.operatorKeyHash == "" {
		return nil, shared.NewInternalError(errors.New("ADMIN_KEY_HASH not configured"), "Admin access not configured")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(svc.operatorKeyHash), []byte(req.OperatorKey)); err != nil {
		return nil, shared.NewUnauthorizedError(err, "Invalid operator key")
	}

	token, err := svc.jwtSvc.ToJWT("operator")
	if err != nil {
		return nil, shared.NewInternalError(err, "Failed to issue token")
	}

	return &dto.LoginResponse{
		AccessToken: token,
		ExpiresIn:   int64(svc.jwtSvc.TokenDuration.Seconds()),
	}, nil
}

func (svc *AuthService) RequiredAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		token, err := svc.jwtSvc.ExtractTokenFromHeader(authHeader)
		if err != nil {
			return shared.ResponseJSON(c, fiber.StatusUnauthorized, "Unauthorized", err.Error())
		}

		operatorID, err := svc.jwtSvc.VerifyJWTToken(token)
		if err != nil {
			return shared.ResponseUnauthorized(c)
		}

		c.Locals(shared.OperatorID, operatorID)
		return c.Next()
	}
}
