package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body interface{}) error
	GET(path string, headers map[string]string) error
	GetStatusCode() int
	GetResponseBody() []byte
	GetResponseField(field string) (interface{}, error)
	SetAccessToken(token string)
	UniqueEmail(email string) string
}

// RegisterSteps registers authentication-related step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &authSteps{tc: tc}

	// Session steps
	ctx.Step(`^I register with email "([^"]*)" and password "([^"]*)"$`, steps.register)
	ctx.Step(`^I am a registered student "([^"]*)"$`, steps.registeredStudent)
	ctx.Step(`^I log in with email "([^"]*)" and password "([^"]*)"$`, steps.login)
	ctx.Step(`^I sign out$`, steps.signOut)

	// Validation steps
	ctx.Step(`^I GET "([^"]*)" with invalid token "([^"]*)"$`, steps.getWithInvalidToken)
}

type authSteps struct {
	tc TestContext
}

func (s *authSteps) register(ctx context.Context, email, password string) error {
	return s.tc.POST("/auth/register", map[string]interface{}{
		"email":    s.tc.UniqueEmail(email),
		"password": password,
	})
}

func (s *authSteps) registeredStudent(ctx context.Context, email string) error {
	if err := s.register(ctx, email, "correct-horse-battery"); err != nil {
		return err
	}
	if s.tc.GetStatusCode() != http.StatusCreated {
		return fmt.Errorf("registration failed: %d %s", s.tc.GetStatusCode(), s.tc.GetResponseBody())
	}
	return s.useSessionToken()
}

func (s *authSteps) login(ctx context.Context, email, password string) error {
	if err := s.tc.POST("/auth/login", map[string]interface{}{
		"email":    s.tc.UniqueEmail(email),
		"password": password,
	}); err != nil {
		return err
	}
	if s.tc.GetStatusCode() == http.StatusOK {
		return s.useSessionToken()
	}
	return nil
}

func (s *authSteps) signOut(ctx context.Context) error {
	s.tc.SetAccessToken("")
	return nil
}

func (s *authSteps) getWithInvalidToken(ctx context.Context, path, token string) error {
	return s.tc.GET(path, map[string]string{
		"Authorization": "Bearer " + token,
	})
}

func (s *authSteps) useSessionToken() error {
	accessToken, err := s.tc.GetResponseField("access_token")
	if err != nil {
		return err
	}
	tok, ok := accessToken.(string)
	if !ok || tok == "" {
		return fmt.Errorf("access_token missing from session response")
	}
	s.tc.SetAccessToken(tok)
	return nil
}
