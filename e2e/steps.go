package e2e

import (
	"github.com/cucumber/godog"

	"admissions/e2e/steps/auth"
	"admissions/e2e/steps/common"
	"admissions/e2e/steps/payment"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (server health, generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register authentication-specific steps
	auth.RegisterSteps(ctx, tc)

	// Register application and payment steps
	payment.RegisterSteps(ctx, tc)
}
