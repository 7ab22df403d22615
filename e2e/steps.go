package e2e

import (
	"fmt"

	"github.com/cucumber/godog"

	"github.com/epitomedu/epi/e2e/steps/apply"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^the response status should be (\d+)$`, func(expected int) error {
		if got := tc.GetLastResponseStatus(); got != expected {
			return fmt.Errorf("expected status %d, got %d: %s", expected, got, tc.GetLastResponseBody())
		}
		return nil
	})

	apply.RegisterSteps(ctx, tc)
}
